package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"codecast/internal/content"
)

// Fingerprint is a hex-encoded SHA-256 digest over the canonical request
// fields. Equal fingerprints identify identical output.
type Fingerprint string

// String returns the hex digest.
func (f Fingerprint) String() string { return string(f) }

// Short returns a truncated digest for logs and listings.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// Compute derives the fingerprint for a pipeline request. Pure and total:
// the same request always yields the same digest, and any semantic field
// difference yields a different one.
func Compute(req content.Request) Fingerprint {
	h := sha256.New()
	fields := []string{
		NormalizeCode(req.Code),
		strings.ToLower(strings.TrimSpace(req.SourceLanguage)),
		strings.ToLower(strings.TrimSpace(req.TargetLanguage)),
		string(req.ContentType),
		strconv.FormatBool(req.IncludeFlowchart),
		strconv.FormatBool(req.IncludeExamples),
		strings.ToLower(strings.TrimSpace(req.NarrationLanguage)),
	}
	for _, field := range fields {
		_, _ = h.Write([]byte(field))
		_, _ = h.Write([]byte{0})
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// NormalizeCode canonicalizes line endings and trailing per-line whitespace.
// Leading indentation is preserved: it is semantic in indentation-sensitive
// languages, and collapsing it would cause false cache hits.
func NormalizeCode(code string) string {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = strings.ReplaceAll(code, "\r", "\n")
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	// Trailing blank lines do not change what the analyzer sees.
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
