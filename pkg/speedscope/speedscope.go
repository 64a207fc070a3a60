// Package speedscope records sampled stack traces as evented speedscope profiles.
//
// File format: https://github.com/jlfwong/speedscope/blob/main/src/lib/file-format-spec.ts
package speedscope

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/danpilch/stackspy/pkg/stack"
)

const (
	schema   = "https://www.speedscope.app/file-format-schema.json"
	exporter = "stackspy"

	profileEvented = "evented"
	unitSeconds    = "seconds"

	eventOpen  = "O"
	eventClose = "C"
)

type file struct {
	Schema             string    `json:"$schema"`
	Shared             shared    `json:"shared"`
	Profiles           []profile `json:"profiles"`
	Name               string    `json:"name"`
	ActiveProfileIndex int       `json:"activeProfileIndex"`
	Exporter           string    `json:"exporter"`
}

type shared struct {
	Frames []frame `json:"frames"`
}

type frame struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

type profile struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Unit       string  `json:"unit"`
	StartValue float64 `json:"startValue"`
	EndValue   float64 `json:"endValue"`
	Events     []event `json:"events"`
}

type event struct {
	Type  string  `json:"type"`
	At    float64 `json:"at"`
	Frame int     `json:"frame"`
}

type thread struct {
	id       uint64
	name     string
	events   []event
	open     []int // frame indexes, outermost first
	lastTick uint64
}

// Stats collects per-thread events. A sample taken at tick n occupies
// [n/rate, (n+1)/rate) seconds; frames shared with the thread's previous
// sample stay open across consecutive ticks.
type Stats struct {
	rate            uint64
	showLineNumbers bool
	frames          []frame
	frameIndex      map[frame]int
	threads         map[uint64]*thread
}

// New creates an empty recorder for samples taken rate times per second.
func New(rate uint64, showLineNumbers bool) *Stats {
	if rate == 0 {
		rate = 1
	}
	return &Stats{
		rate:            rate,
		showLineNumbers: showLineNumbers,
		frameIndex:      make(map[frame]int),
		threads:         make(map[uint64]*thread),
	}
}

func (s *Stats) seconds(tick uint64) float64 {
	return float64(tick) / float64(s.rate)
}

func (s *Stats) frameID(f stack.Frame) int {
	key := frame{Name: f.Name, File: f.DisplayFilename()}
	if s.showLineNumbers {
		key.Line = f.Line
	}
	if id, ok := s.frameIndex[key]; ok {
		return id
	}
	id := len(s.frames)
	s.frames = append(s.frames, key)
	s.frameIndex[key] = id
	return id
}

// Increment records trace as sampled at the given instant.
func (s *Stats) Increment(at stack.Instant, trace *stack.StackTrace) error {
	th, ok := s.threads[trace.ThreadID]
	if !ok {
		name := trace.ThreadName
		if name == "" {
			name = fmt.Sprintf("Thread %#x", trace.ThreadID)
		}
		th = &thread{id: trace.ThreadID, name: name}
		s.threads[trace.ThreadID] = th
	} else if at.Tick < th.lastTick {
		return fmt.Errorf("sample for thread %d at tick %d precedes tick %d", trace.ThreadID, at.Tick, th.lastTick)
	}

	// a skipped tick means the thread was not observed in between
	if len(th.open) > 0 && at.Tick > th.lastTick+1 {
		th.closeFrom(0, s.seconds(th.lastTick+1))
	}

	ids := make([]int, len(trace.Frames))
	for i := range trace.Frames {
		ids[i] = s.frameID(trace.Frames[len(trace.Frames)-1-i])
	}

	common := 0
	for common < len(ids) && common < len(th.open) && ids[common] == th.open[common] {
		common++
	}

	now := s.seconds(at.Tick)
	th.closeFrom(common, now)
	for _, id := range ids[common:] {
		th.events = append(th.events, event{Type: eventOpen, At: now, Frame: id})
	}
	th.open = append(th.open, ids[common:]...)
	th.lastTick = at.Tick
	return nil
}

// closeFrom closes open frames above depth, innermost first.
func (th *thread) closeFrom(depth int, at float64) {
	for i := len(th.open) - 1; i >= depth; i-- {
		th.events = append(th.events, event{Type: eventClose, At: at, Frame: th.open[i]})
	}
	th.open = th.open[:depth]
}

func (s *Stats) profiles() []profile {
	ids := make([]uint64, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	profiles := make([]profile, 0, len(ids))
	for _, id := range ids {
		th := s.threads[id]
		events := make([]event, len(th.events), len(th.events)+len(th.open))
		copy(events, th.events)
		end := s.seconds(th.lastTick + 1)
		for i := len(th.open) - 1; i >= 0; i-- {
			events = append(events, event{Type: eventClose, At: end, Frame: th.open[i]})
		}

		p := profile{
			Type:   profileEvented,
			Name:   th.name,
			Unit:   unitSeconds,
			Events: events,
		}
		if len(events) > 0 {
			p.StartValue = events[0].At
			p.EndValue = events[len(events)-1].At
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// Write encodes the recorded samples as a speedscope document.
func (s *Stats) Write(w io.Writer) error {
	frames := s.frames
	if frames == nil {
		frames = []frame{}
	}
	out := file{
		Schema:   schema,
		Shared:   shared{Frames: frames},
		Profiles: s.profiles(),
		Name:     "stackspy profile",
		Exporter: exporter,
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("cannot encode speedscope profile: %w", err)
	}
	return nil
}
