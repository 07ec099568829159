// Package session houses concrete implementations of core.Store. The
// interface itself (and the Session struct) live in the core package to
// centralize domain contracts; keeping only implementations here prevents
// higher level packages (conversation, chat, server) from depending on
// concrete storage.
//
// Sessions are volatile by design: the provider-side cache they point at has
// its own TTL and cannot survive a restart meaningfully, so no durable
// backend is provided.
package session
