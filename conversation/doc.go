// Package conversation manages the session lifecycle: creation against the
// provider cache, retrieval with lazy expiry eviction, cache validation and
// rebuild, atomic turn appends, deletion and the periodic expired-session
// sweep.
//
// The local session TTL and the provider-side cache TTL are two independently
// expiring resources pointing at the same logical context. They are never
// kept in lockstep; ValidateAndRefresh reconciles them lazily on the first
// turn after the remote side vanished.
package conversation
