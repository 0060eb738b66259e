package media

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     string `json:"duration"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Tags         struct {
		Rotate string `json:"rotate"`
	} `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// ParseProbe decodes `ffprobe -show_format -show_streams -of json` output.
// Rotated phone footage reports its display orientation, so a 90 or 270
// degree rotation swaps width and height.
func ParseProbe(path string, data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	res := &ProbeResult{Path: path}
	res.Duration = parseFloat(out.Format.Duration)
	res.Size, _ = strconv.ParseInt(out.Format.Size, 10, 64)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if res.HasVideo {
				continue
			}
			res.HasVideo = true
			res.VideoCodec = s.CodecName
			res.Width, res.Height = s.Width, s.Height
			if isQuarterTurn(s) {
				res.Width, res.Height = s.Height, s.Width
			}
			res.FrameRate = parseRate(s.AvgFrameRate)
			if res.FrameRate == 0 {
				res.FrameRate = parseRate(s.RFrameRate)
			}
			if res.Duration == 0 {
				res.Duration = parseFloat(s.Duration)
			}
		case "audio":
			if res.HasAudio {
				continue
			}
			res.HasAudio = true
			res.AudioCodec = s.CodecName
			res.SampleRate, _ = strconv.Atoi(s.SampleRate)
			if res.Duration == 0 {
				res.Duration = parseFloat(s.Duration)
			}
		}
	}

	if !res.HasVideo && !res.HasAudio {
		return nil, fmt.Errorf("no audio or video streams in %s", path)
	}
	return res, nil
}

func isQuarterTurn(s probeStream) bool {
	rot := parseFloat(s.Tags.Rotate)
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			rot = sd.Rotation
		}
	}
	r := int(rot) % 360
	if r < 0 {
		r += 360
	}
	return r == 90 || r == 270
}

// parseRate handles ffprobe's "30000/1001" notation.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
