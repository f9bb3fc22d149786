// Package fetch acquires remote media into local staging via yt-dlp.
package fetch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// maxHeight bounds the downloaded resolution to keep transfers small;
// chat clients re-encode anyway.
const maxHeight = 360

// YtDlp fetches remote video via the yt-dlp binary at a bounded
// resolution preset.
type YtDlp struct {
	// Binary overrides the executable name. Default "yt-dlp".
	Binary string
}

// Fetch downloads url into dir and returns the resulting files.
func (y YtDlp) Fetch(ctx context.Context, url, dir string) ([]string, error) {
	binary := y.Binary
	if binary == "" {
		binary = "yt-dlp"
	}

	outTemplate := filepath.Join(dir, "%(id)s.%(ext)s")
	format := fmt.Sprintf("best[height<=%d]", maxHeight)

	cmd := exec.CommandContext(ctx, binary,
		"--format", format,
		"--output", outTemplate,
		"--no-playlist",
		url,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("fetch %q: %w: %s", url, err, out)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("fetch %q: no files produced", url)
	}
	return files, nil
}
