// Package caption turns speech in a rendered reel into short subtitle cues
// and attaches them to the video, burned in when the ffmpeg build allows it.
package caption

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cue is one subtitle entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

func (c Cue) Duration() time.Duration {
	return c.End - c.Start
}

// ParseSRT reads SubRip text. Blocks without a valid timing line are
// skipped; cue text lines are joined with a newline.
func ParseSRT(r io.Reader) ([]Cue, error) {
	var cues []Cue
	var cur *Cue
	var text []string

	flush := func() {
		if cur != nil && len(text) > 0 {
			cur.Text = strings.Join(text, "\n")
			cues = append(cues, *cur)
		}
		cur, text = nil, nil
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		switch {
		case line == "":
			flush()
		case cur == nil && strings.Contains(line, "-->"):
			start, end, err := parseTiming(line)
			if err != nil {
				continue
			}
			cur = &Cue{Index: len(cues) + 1, Start: start, End: end}
		case cur == nil:
			// index line
		default:
			text = append(text, line)
		}
	}
	flush()

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return cues, nil
}

func parseTiming(line string) (time.Duration, time.Duration, error) {
	left, right, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, fmt.Errorf("no timing arrow")
	}
	start, err := parseTimestamp(left)
	if err != nil {
		return 0, 0, err
	}
	// position hints may follow the end time
	fields := strings.Fields(right)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("missing end time")
	}
	end, err := parseTimestamp(fields[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("end before start")
	}
	return start, end, nil
}

// parseTimestamp accepts HH:MM:SS,mmm and HH:MM:SS.mmm.
func parseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad hours in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad minutes in %q", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("bad seconds in %q", s)
	}
	total := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return total + time.Duration(sec*1000+0.5)*time.Millisecond, nil
}

func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// FormatSRT renders cues as SubRip, numbering them from 1 in order.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, formatTimestamp(c.Start), formatTimestamp(c.End), c.Text)
	}
	return b.String()
}

func WriteSRT(path string, cues []Cue) error {
	if err := os.WriteFile(path, []byte(FormatSRT(cues)), 0644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}
