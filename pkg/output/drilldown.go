package output

import (
	"fmt"

	"github.com/danpilch/stackspy/pkg/config"
	"github.com/danpilch/stackspy/pkg/sampler"
)

// Suggestion represents a next step after a run.
type Suggestion struct {
	Tool    string
	Command string
	Reason  string
}

// NextSteps returns follow-up suggestions for a finished recording.
func NextSteps(cfg config.Config, path string, res sampler.Result) []Suggestion {
	var suggestions []Suggestion

	switch cfg.Format {
	case config.FormatSpeedscope:
		suggestions = append(suggestions,
			Suggestion{"speedscope", "https://www.speedscope.app/", "Visit to view " + path},
		)
	case config.FormatRaw:
		end := uint64(len(res.PerBucket))
		if end == 0 {
			end = 1
		}
		suggestions = append(suggestions,
			Suggestion{"stackspy", fmt.Sprintf("stackspy generate --file %s --start 0 --end %d", path, end), "Render a time window"},
		)
	}

	if res.Ticks > 0 && (res.Errors*10 > res.Ticks || res.MaxOverrun > sampler.LateWarning) && cfg.Rate > 1 {
		suggestions = append(suggestions,
			Suggestion{"stackspy", fmt.Sprintf("stackspy record --pid %d --rate %d", cfg.Pid, cfg.Rate/2), "Sample less often"},
		)
	}

	return suggestions
}
