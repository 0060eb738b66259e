package caption

import (
	"strings"
	"time"
)

// DefaultMaxWords is the cue length short-form captions are split to.
const DefaultMaxWords = 5

// Regroup splits cues longer than maxWords words into near-equal chunks of
// at most maxWords. Each chunk gets a share of the cue's time proportional
// to its word count. Chunk boundaries never leave the original cue.
func Regroup(cues []Cue, maxWords int) []Cue {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		words := strings.Fields(c.Text)
		if len(words) == 0 {
			continue
		}
		if len(words) <= maxWords {
			c.Text = strings.Join(words, " ")
			out = append(out, c)
			continue
		}

		chunks := (len(words) + maxWords - 1) / maxWords
		size := (len(words) + chunks - 1) / chunks
		span := c.Duration()

		for j := 0; j < len(words); j += size {
			k := min(j+size, len(words))
			out = append(out, Cue{
				Start: c.Start + scale(span, j, len(words)),
				End:   c.Start + scale(span, k, len(words)),
				Text:  strings.Join(words[j:k], " "),
			})
		}
	}

	for i := range out {
		out[i].Index = i + 1
	}
	return out
}

func scale(d time.Duration, num, den int) time.Duration {
	return time.Duration(int64(d) * int64(num) / int64(den))
}
