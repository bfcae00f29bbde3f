// Package fingerprint derives the deterministic content address used as the
// cache key. The digest covers the normalized code and every generation
// parameter that changes the output; nothing environmental (time, host,
// randomness) participates.
package fingerprint
