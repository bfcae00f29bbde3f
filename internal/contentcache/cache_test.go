package contentcache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"codecast/internal/content"
	"codecast/internal/fingerprint"
	"codecast/internal/logging"
	"codecast/internal/services"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), maxBytes, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	// Plenty of disk in tests; keep the free-space floor out of the way.
	store.statfs = func(string) (uint64, uint64, error) { return 1 << 40, 1 << 39, nil }
	return store
}

func testRequest(code string) content.Request {
	return content.Request{
		Code:              code,
		SourceLanguage:    "go",
		ContentType:       content.TypeVideo,
		NarrationLanguage: "en",
	}
}

func testExplanation(id string) *content.Explanation {
	return &content.Explanation{
		ID:              id,
		ContentURL:      "file:///tmp/" + id + ".json",
		ContentType:     content.TypeVideo,
		DurationSeconds: 180,
		Transcript:      "This function sorts the input.",
		ScriptMarkdown:  "## Walkthrough\n\nThis function sorts the input.",
		CreatedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t, 1<<20)
	ctx := context.Background()
	req := testRequest("func main() {}")
	fp := fingerprint.Compute(req)

	if _, found, err := store.Get(ctx, fp); err != nil || found {
		t.Fatalf("expected clean miss, got found=%v err=%v", found, err)
	}

	want := testExplanation("expl-1")
	if err := store.Put(ctx, fp, req, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected a hit")
	}
	if got.ID != want.ID || got.Transcript != want.Transcript || got.DurationSeconds != want.DurationSeconds {
		t.Errorf("round trip mismatch: got %+v", got)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.Entries != 1 {
		t.Errorf("entries = %d", stats.Entries)
	}
}

func TestEvictionRespectsBudget(t *testing.T) {
	store := newTestStore(t, 2000)
	ctx := context.Background()

	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	var fps []fingerprint.Fingerprint
	for i := 0; i < 4; i++ {
		req := testRequest(fmt.Sprintf("func f%d() {}", i))
		fp := fingerprint.Compute(req)
		fps = append(fps, fp)
		if err := store.Put(ctx, fp, req, testExplanation(fmt.Sprintf("expl-%d", i))); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
		current = current.Add(time.Minute)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalBytes > 2000 {
		t.Errorf("cache exceeds budget: %d bytes", stats.TotalBytes)
	}

	// The newest entry always survives its own Put.
	if _, found, err := store.Get(ctx, fps[len(fps)-1]); err != nil || !found {
		t.Errorf("newest entry should survive, found=%v err=%v", found, err)
	}
}

func TestEvictionPrefersLeastRecentlyUsed(t *testing.T) {
	store := newTestStore(t, 1<<20)
	ctx := context.Background()

	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	reqOld := testRequest("func old() {}")
	reqHot := testRequest("func hot() {}")
	fpOld := fingerprint.Compute(reqOld)
	fpHot := fingerprint.Compute(reqHot)

	if err := store.Put(ctx, fpOld, reqOld, testExplanation("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	current = current.Add(time.Minute)
	if err := store.Put(ctx, fpHot, reqHot, testExplanation("hot")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	current = current.Add(time.Minute)
	if _, _, err := store.Get(ctx, fpHot); err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Shrink the budget and trigger eviction with a third entry.
	store.maxBytes = 900
	current = current.Add(time.Minute)
	reqNew := testRequest("func fresh() {}")
	fpNew := fingerprint.Compute(reqNew)
	if err := store.Put(ctx, fpNew, reqNew, testExplanation("fresh")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, found, _ := store.Get(ctx, fpOld); found {
		t.Error("least recently used entry should have been evicted first")
	}
}

func TestOversizedArtifactRejected(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	req := testRequest("func main() {}")
	fp := fingerprint.Compute(req)

	err := store.Put(ctx, fp, req, testExplanation("big"))
	if !errors.Is(err, services.ErrCacheIO) {
		t.Fatalf("expected ErrCacheIO for oversized artifact, got %v", err)
	}
	if _, found, _ := store.Get(ctx, fp); found {
		t.Error("oversized artifact must not be cached")
	}
}

func TestInvalidateReturnsContentIDAndIsIdempotent(t *testing.T) {
	store := newTestStore(t, 1<<20)
	ctx := context.Background()
	req := testRequest("func main() {}")
	fp := fingerprint.Compute(req)

	if err := store.Put(ctx, fp, req, testExplanation("expl-9")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	id, err := store.Invalidate(ctx, fp)
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if id != "expl-9" {
		t.Errorf("removed content id = %q", id)
	}

	id, err = store.Invalidate(ctx, fp)
	if err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}
	if id != "" {
		t.Errorf("second invalidation should be a no-op, got %q", id)
	}

	if _, found, _ := store.Get(ctx, fp); found {
		t.Error("entry should be gone after invalidation")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	store := newTestStore(t, 1<<20)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := testRequest(fmt.Sprintf("func f%d() {}", i))
		fp := fingerprint.Compute(req)
		if err := store.Put(ctx, fp, req, testExplanation(fmt.Sprintf("expl-%d", i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty cache, got %d entries", len(entries))
	}
}

func TestListOrdersByRecency(t *testing.T) {
	store := newTestStore(t, 1<<20)
	ctx := context.Background()

	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	reqA := testRequest("func a() {}")
	reqB := testRequest("func b() {}")
	fpA := fingerprint.Compute(reqA)
	fpB := fingerprint.Compute(reqB)

	if err := store.Put(ctx, fpA, reqA, testExplanation("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	current = current.Add(time.Minute)
	if err := store.Put(ctx, fpB, reqB, testExplanation("b")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	current = current.Add(time.Minute)
	if _, _, err := store.Get(ctx, fpA); err != nil {
		t.Fatalf("Get: %v", err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].ContentID != "a" {
		t.Errorf("most recently accessed should list first, got %q", entries[0].ContentID)
	}
}
