// Package relay converts a raw token-producing channel pair into a
// termination-guaranteed chunk stream usable by any transport. It exists so
// the "safe stream wrapper that folds upstream failures into one final
// sentinel chunk" is written once instead of being re-derived at every
// streaming call site.
package relay
