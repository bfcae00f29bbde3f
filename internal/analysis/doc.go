// Package analysis produces the structural summary the pipeline needs
// before any generation stage runs: line counts, detected functions and
// branches, a cyclomatic estimate, and a narration duration hint. The
// orchestrator consumes it through the Analyzer interface so editor hosts
// can substitute a real AST-backed analyzer; the bundled Heuristic analyzer
// works from lexical scanning only. Analysis failures are terminal for the
// request.
package analysis
