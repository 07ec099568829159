// Package core provides the foundational domain types and interfaces used by
// chatrelay. It defines the core abstractions for:
//
//   - Sessions (conversational containers bound to one provider-side cached context)
//   - Messages (ordered user/assistant turn history)
//   - Documents (retained upload bytes enabling verbatim cache rebuilds)
//   - StreamChunk (the transport-neutral streaming event protocol)
//   - Store (the concurrent session map contract)
//   - The error taxonomy shared by all layers
//
// The package intentionally keeps implementation concerns (storage backends,
// provider clients, transports) out of scope, exposing small interfaces so
// higher layers can be composed and tested independently.
package core
