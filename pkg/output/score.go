package output

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/danpilch/stackspy/pkg/sampler"
)

// QualityScore computes a 0-100 score for how faithfully a run sampled.
// Starts at 100, -1 per percent of failed ticks, -1 per two percent of late
// ticks, -20 if any tick was more than a second late.
func QualityScore(res sampler.Result) int {
	if res.Ticks == 0 {
		return 0
	}
	score := 100
	score -= int(res.Errors * 100 / res.Ticks)
	score -= int(res.Overruns * 50 / res.Ticks)
	if res.MaxOverrun > sampler.LateWarning {
		score -= 20
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ScoreLabel returns a human-readable label for a quality score.
func ScoreLabel(score int) string {
	if score >= 80 {
		return "Good"
	}
	if score >= 50 {
		return "Degraded"
	}
	return "Poor"
}

func scoreStyle(score int) lipgloss.Style {
	if score >= 80 {
		return okStyle
	}
	if score >= 50 {
		return warnStyle
	}
	return errStyle
}
