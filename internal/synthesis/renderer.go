package synthesis

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"codecast/internal/content"
	"codecast/internal/services"
)

// FileRenderer writes explanation artifacts to a directory. Each
// explanation becomes <id>.json with the full document and <id>.txt with
// the plain transcript for piping into a text-to-speech engine.
type FileRenderer struct {
	dir string
}

// NewFileRenderer creates the artifact directory if needed.
func NewFileRenderer(dir string) (*FileRenderer, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesis", "renderer", "artifact directory required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSynthesis, "synthesis", "renderer", "create artifact directory", err)
	}
	return &FileRenderer{dir: dir}, nil
}

// Render persists the explanation and returns a file URL to the document.
func (r *FileRenderer) Render(ctx context.Context, expl *content.Explanation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(expl, "", "  ")
	if err != nil {
		return "", err
	}
	docPath := filepath.Join(r.dir, expl.ID+".json")
	if err := os.WriteFile(docPath, data, 0o644); err != nil {
		return "", err
	}
	transcriptPath := filepath.Join(r.dir, expl.ID+".txt")
	if err := os.WriteFile(transcriptPath, []byte(expl.Transcript+"\n"), 0o644); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(docPath)
	if err != nil {
		abs = docPath
	}
	return (&url.URL{Scheme: "file", Path: abs}).String(), nil
}
