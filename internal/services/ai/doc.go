// Package ai defines the capability contract every generation backend
// implements. Backends come in two kinds, cloud and local; the router
// dispatches on the enumerated kind, never on concrete types.
package ai
