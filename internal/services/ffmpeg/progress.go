package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// progressParser accumulates the key=value blocks ffmpeg writes to the
// -progress pipe. Each block ends with a progress=continue or progress=end
// line; one ProgressUpdate is emitted per block.
type progressParser struct {
	total   time.Duration
	frame   int64
	outTime time.Duration
	speed   float64
}

func newProgressParser(total time.Duration) *progressParser {
	return &progressParser{total: total}
}

// Feed consumes a single progress line. The returned bool is true when the
// line completes a block and an update should be delivered.
func (p *progressParser) Feed(line string) (ProgressUpdate, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return ProgressUpdate{}, false
	}
	value = strings.TrimSpace(value)

	switch key {
	case "frame":
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.frame = parsed
		}
	case "out_time_us", "out_time_ms":
		// Both keys report microseconds; out_time_ms is misnamed upstream.
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed >= 0 {
			p.outTime = time.Duration(parsed) * time.Microsecond
		}
	case "speed":
		if parsed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
			p.speed = parsed
		}
	case "progress":
		done := value == "end"
		return ProgressUpdate{
			Percent: p.percent(done),
			Frame:   p.frame,
			OutTime: p.outTime,
			Speed:   p.speed,
			Done:    done,
		}, true
	}
	return ProgressUpdate{}, false
}

func (p *progressParser) percent(done bool) float64 {
	if done {
		return 100
	}
	if p.total <= 0 {
		return -1
	}
	percent := float64(p.outTime) / float64(p.total) * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
