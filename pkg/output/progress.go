package output

import (
	"fmt"
	"io"
	"strings"
)

const barWidth = 40

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Progress draws a single-line progress display: a bar when the number of
// ticks is known, a spinner with a status message otherwise. It implements
// sampler.Progress and is driven from the sampling goroutine only.
type Progress struct {
	w     io.Writer
	total uint64 // 0 = unbounded
	every uint64 // redraw interval in ticks
	done  uint64
	msg   string
	drawn bool
}

// NewProgress creates a progress display for total ticks, 0 for unbounded
// runs. rate limits redraws to a few per second.
func NewProgress(w io.Writer, total, rate uint64) *Progress {
	every := rate / 10
	if every == 0 {
		every = 1
	}
	return &Progress{w: w, total: total, every: every}
}

// Inc advances the display by one tick.
func (p *Progress) Inc() {
	p.done++
	if p.done%p.every == 0 || p.done == p.total {
		p.draw()
	}
}

// SetMessage sets the status shown next to the spinner.
func (p *Progress) SetMessage(msg string) {
	p.msg = msg
}

// Warn prints msg above the progress line.
func (p *Progress) Warn(msg string) {
	p.clear()
	fmt.Fprintln(p.w, warnStyle.Render(msg))
	p.draw()
}

// Finish ends the progress line.
func (p *Progress) Finish() {
	if p.drawn {
		p.draw()
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

func (p *Progress) clear() {
	if p.drawn {
		fmt.Fprint(p.w, "\r\x1b[K")
	}
}

func (p *Progress) draw() {
	p.clear()
	p.drawn = true
	if p.total == 0 {
		frame := spinnerFrames[(p.done/p.every)%uint64(len(spinnerFrames))]
		fmt.Fprintf(p.w, "\r%s %s", titleStyle.Render(string(frame)), p.msg)
		return
	}

	done := p.done
	if done > p.total {
		done = p.total
	}
	filled := int(done * barWidth / p.total)
	fmt.Fprintf(p.w, "\r%s%s %d/%d",
		okStyle.Render(strings.Repeat("█", filled)),
		dimStyle.Render(strings.Repeat("░", barWidth-filled)),
		done, p.total)
}
