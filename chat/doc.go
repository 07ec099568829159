// Package chat executes turns. Two request shapes share one policy: uncached
// turns resend system prompt, raw context and full history on every call;
// session-bound turns resolve a session, force cache validation/refresh, and
// send only the new user message plus prior history, because the grounding
// context already lives in the provider-side cache. That conversion from an
// O(context size) request into an O(recent turns) request is the reason the
// session cache exists.
package chat
