// Package progress turns download tool output into structured progress.
package progress

import (
	"math"
	"regexp"
	"strconv"
)

// Progress is one parsed progress report.
type Progress struct {
	Percent         float64 `json:"percent"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes"`
	SpeedLabel      string  `json:"speedLabel"`
	ETALabel        string  `json:"etaLabel"`
}

// Matches lines such as:
//
//	[download]  42.0% of ~50.00MiB at 2.50MiB/s ETA 00:30
var lineRe = regexp.MustCompile(
	`^\s*\[download\]\s+(\d+(?:\.\d+)?)%\s+of\s+~?\s*(\d+(?:\.\d+)?)\s*(B|KiB|MiB|GiB|TiB|PiB)\s+at\s+(\d+(?:\.\d+)?)\s*(B|KiB|MiB|GiB|TiB|PiB)/s\s+ETA\s+(\d{1,2}:\d{2}(?::\d{2})?)`,
)

var unitExponent = map[string]int{
	"B":   0,
	"KiB": 1,
	"MiB": 2,
	"GiB": 3,
	"TiB": 4,
	"PiB": 5,
}

// Parse reports whether line is a progress line and, if so, what it says.
// Lines that look like progress but carry unusable numbers are rejected the
// same way as any other output.
func Parse(line string) (Progress, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil || percent < 0 || percent > 100 {
		return Progress{}, false
	}

	total, ok := toBytes(m[2], m[3])
	if !ok {
		return Progress{}, false
	}
	if _, err := strconv.ParseFloat(m[4], 64); err != nil {
		return Progress{}, false
	}

	return Progress{
		Percent:         percent,
		DownloadedBytes: int64(math.Round(percent / 100 * float64(total))),
		TotalBytes:      total,
		SpeedLabel:      m[4] + " " + m[5] + "/s",
		ETALabel:        m[6],
	}, true
}

func toBytes(size, unit string) (int64, bool) {
	v, err := strconv.ParseFloat(size, 64)
	if err != nil {
		return 0, false
	}
	exp, ok := unitExponent[unit]
	if !ok {
		return 0, false
	}
	b := math.Round(v * math.Pow(1024, float64(exp)))
	if math.IsInf(b, 0) || math.IsNaN(b) || b >= math.MaxInt64 {
		return 0, false
	}
	return int64(b), true
}
