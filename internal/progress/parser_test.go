package progress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DownloadLine(t *testing.T) {
	p, ok := Parse("[download]  42.0% of ~50.00MiB at 2.50MiB/s ETA 00:30")
	require.True(t, ok)

	assert.Equal(t, 42.0, p.Percent)
	assert.Equal(t, int64(52428800), p.TotalBytes)
	assert.Equal(t, int64(22020096), p.DownloadedBytes)
	assert.Equal(t, "2.50 MiB/s", p.SpeedLabel)
	assert.Equal(t, "00:30", p.ETALabel)
}

func TestParse_Units(t *testing.T) {
	tests := []struct {
		line  string
		total int64
	}{
		{"[download] 10.0% of 512B at 1.00B/s ETA 00:01", 512},
		{"[download] 10.0% of 2.00KiB at 1.00KiB/s ETA 00:01", 2048},
		{"[download] 10.0% of 1.50GiB at 10.00MiB/s ETA 02:10", 1610612736},
		{"[download] 10.0% of 1.00TiB at 10.00MiB/s ETA 1:02:10", 1 << 40},
		{"[download] 10.0% of 1.00PiB at 1.00GiB/s ETA 10:02:10", 1 << 50},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p, ok := Parse(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.total, p.TotalBytes)
		})
	}
}

func TestParse_DownloadedMatchesPercentOfTotal(t *testing.T) {
	lines := []string{
		"[download]   0.0% of 10.00MiB at 1.00MiB/s ETA 00:10",
		"[download]   3.7% of ~123.45MiB at 800.00KiB/s ETA 02:31",
		"[download]  99.9% of 4.20GiB at 12.34MiB/s ETA 00:01",
		"[download] 100.0% of 7.77KiB at 7.77KiB/s ETA 00:00",
	}
	for _, line := range lines {
		p, ok := Parse(line)
		require.True(t, ok, line)
		want := p.Percent / 100 * float64(p.TotalBytes)
		assert.LessOrEqual(t, math.Abs(float64(p.DownloadedBytes)-want), 0.5, line)
	}
}

func TestParse_IgnoresOtherOutput(t *testing.T) {
	lines := []string{
		"",
		"[youtube] abc123: Downloading webpage",
		"[info] abc123: Downloading 1 format(s): 137+140",
		"[download] Destination: /data/abc123-1.mp4",
		"[download] 100% of 50.00MiB in 00:00:20 at 2.50MiB/s",
		"[download]  42.0% of ~50.00MiB at Unknown B/s ETA Unknown",
		"[download]  42.0% of ~50.00XiB at 2.50MiB/s ETA 00:30",
		"[download] 142.0% of 50.00MiB at 2.50MiB/s ETA 00:30",
		"[Merger] Merging formats into \"abc123-1.mp4\"",
	}
	for _, line := range lines {
		_, ok := Parse(line)
		assert.False(t, ok, line)
	}
}

func TestParse_OverflowIsIgnored(t *testing.T) {
	_, ok := Parse("[download] 50.0% of 99999999999.00PiB at 1.00MiB/s ETA 00:30")
	assert.False(t, ok)
}
