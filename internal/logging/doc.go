// Package logging wires slog with the handlers and field conventions used
// across codecast. Console output is a compact key=value line per record;
// JSON output is machine-readable for log shipping. Component loggers and
// context-derived attributes keep pipeline records correlated.
package logging
