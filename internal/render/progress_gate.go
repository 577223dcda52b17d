package render

import "strings"

// progressLogGate thins ffmpeg's per-second progress stream down to log
// lines worth keeping: one per step-percent bucket plus every stage change.
// Updates still reach the websocket sink unthinned.
type progressLogGate struct {
	step     float64
	stage    string
	lastStep int
}

func newProgressLogGate(step float64) *progressLogGate {
	if step <= 0 {
		step = 5
	}
	return &progressLogGate{step: step, lastStep: -1}
}

// admit reports whether this sample deserves a log line. A negative percent
// means ffmpeg has not reported progress yet; only a stage change logs then.
func (g *progressLogGate) admit(percent float64, stage string) bool {
	emit := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != g.stage {
		g.stage = stage
		g.lastStep = -1
		emit = true
	}
	if percent >= 0 {
		step := int(percent / g.step)
		if percent >= 100 {
			step = int(100 / g.step)
		}
		if step > g.lastStep {
			g.lastStep = step
			emit = true
		}
	}
	return emit
}
