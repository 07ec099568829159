// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing core model objects (sessions, documents,
// history turns) and asserting behaviors. These helpers are intentionally
// minimal. They are not intended for production usage.
package testutil
