package supplier

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/reelsmith/reelsmith-agent/internal/export"
)

// numberedPrefix matches list numbering such as "3. " at the start of a line.
var numberedPrefix = regexp.MustCompile(`^\s*\d+\.\s*`)

// ParseKeywords reads one keyword per line, dropping list numbering and
// blank lines.
func ParseKeywords(r io.Reader) ([]string, error) {
	var keywords []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		kw := strings.TrimSpace(numberedPrefix.ReplaceAllString(sc.Text(), ""))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	return keywords, nil
}

func LoadKeywords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keywords file: %w", err)
	}
	defer f.Close()
	return ParseKeywords(f)
}

// ClipFileName is the file a keyword's i-th result (1-based) is saved as.
func ClipFileName(keyword string, i int) string {
	return fmt.Sprintf("%s_%d.mp4", clipBaseName(keyword), i)
}

func clipBaseName(keyword string) string {
	name := export.SanitizeName(strings.ReplaceAll(keyword, " ", "_"), 60)
	if name == "" {
		name = "clip"
	}
	return name
}

// UniqueKeywords drops keywords whose clip files would collide with an
// earlier keyword's, comparing sanitized names case-insensitively. Order is
// kept.
func UniqueKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		key := strings.ToLower(clipBaseName(kw))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}
