// Package services carries the cross-cutting error taxonomy, the external
// error-response shape, and context annotation helpers shared by the router,
// pipeline, and backend clients. Errors are tagged with sentinel markers via
// Wrap so callers classify failures with errors.Is instead of string
// matching.
package services
