package main

import (
	"encoding/json"
	"strings"
	"testing"
)

const sampleGoSource = `package main

import "fmt"

func classify(n int) string {
	if n%2 == 0 {
		return "even"
	}
	return "odd"
}

func main() {
	for i := 0; i < 5; i++ {
		fmt.Println(classify(i))
	}
}
`

func TestExplainGeneratesAndCaches(t *testing.T) {
	configPath := setupCLITestEnv(t)
	source := writeSourceFile(t, "sample.go", sampleGoSource)

	out, _, err := runCLI(t, configPath, "explain", source)
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	requireContains(t, out, "Explanation")
	requireContains(t, out, "Artifact: file://")
	requireContains(t, out, "codecast ask")

	// The second run must be served from the cache.
	out, _, err = runCLI(t, configPath, "explain", source)
	if err != nil {
		t.Fatalf("explain (cached): %v", err)
	}
	requireContains(t, out, "cache")

	out, _, err = runCLI(t, configPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Entries")
	requireContains(t, out, "1")
}

func TestExplainJSONOutputAndInvalidate(t *testing.T) {
	configPath := setupCLITestEnv(t)
	source := writeSourceFile(t, "sample.go", sampleGoSource)

	out, _, err := runCLI(t, configPath, "--json", "explain", source)
	if err != nil {
		t.Fatalf("explain --json: %v", err)
	}
	var result struct {
		ContentID   string `json:"content_id"`
		Fingerprint string `json:"fingerprint"`
		FromCache   bool   `json:"from_cache"`
		Transcript  string `json:"transcript"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("parse output %q: %v", out, err)
	}
	if result.ContentID == "" || len(result.Fingerprint) != 64 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.FromCache {
		t.Fatal("first generation should not be a cache hit")
	}
	if strings.TrimSpace(result.Transcript) == "" {
		t.Fatal("expected a transcript")
	}

	out, _, err = runCLI(t, configPath, "cache", "invalidate", result.Fingerprint)
	if err != nil {
		t.Fatalf("cache invalidate: %v", err)
	}
	requireContains(t, out, "Removed "+result.ContentID)

	// Idempotent: a second invalidation finds nothing.
	out, _, err = runCLI(t, configPath, "cache", "invalidate", result.Fingerprint)
	if err != nil {
		t.Fatalf("cache invalidate (repeat): %v", err)
	}
	requireContains(t, out, "Nothing cached")
}

func TestExplainRequiresLanguageOnStdin(t *testing.T) {
	configPath := setupCLITestEnv(t)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", configPath, "explain"})
	cmd.SetIn(strings.NewReader("print('hi')\n"))
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--language") {
		t.Fatalf("expected language error, got %v", err)
	}
}

func TestExplainRejectsUnknownContentType(t *testing.T) {
	configPath := setupCLITestEnv(t)
	source := writeSourceFile(t, "sample.go", sampleGoSource)

	if _, _, err := runCLI(t, configPath, "explain", "--type", "hologram", source); err == nil {
		t.Fatal("expected error for unknown content type")
	}
}

func TestAskAnswersFollowUpQuestion(t *testing.T) {
	configPath := setupCLITestEnv(t)
	source := writeSourceFile(t, "sample.go", sampleGoSource)

	if _, _, err := runCLI(t, configPath, "explain", source); err != nil {
		t.Fatalf("explain: %v", err)
	}

	out, _, err := runCLI(t, configPath, "ask", "What does the main function do?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Fatal("expected an answer")
	}
}

func TestDoctorReportsLocalBackend(t *testing.T) {
	configPath := setupCLITestEnv(t)

	out, _, err := runCLI(t, configPath, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	requireContains(t, out, "local")
	requireContains(t, out, "ok")
	requireContains(t, out, "Mode: local")
}
