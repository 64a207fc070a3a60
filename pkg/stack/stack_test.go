package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleTrace() *StackTrace {
	return &StackTrace{
		ThreadID: 0x1a,
		Active:   true,
		Frames: []Frame{
			{Name: "inner", Filename: "/srv/app/lib/work.py", ShortFilename: "lib/work.py", Line: 12},
			{Name: "middle", Filename: "/srv/app/main.py", Line: 0},
			{Name: "outer", Filename: "/srv/app/main.py", Line: 40},
		},
	}
}

func TestFolded_LineNumbers(t *testing.T) {
	got := sampleTrace().Folded(true)
	assert.Equal(t, "outer (/srv/app/main.py:40);middle (/srv/app/main.py);inner (lib/work.py:12)", got)
}

func TestFolded_FunctionsOnly(t *testing.T) {
	got := sampleTrace().Folded(false)
	assert.Equal(t, "outer (/srv/app/main.py);middle (/srv/app/main.py);inner (lib/work.py)", got)
}

func TestFolded_Empty(t *testing.T) {
	tr := &StackTrace{}
	assert.Equal(t, "", tr.Folded(true))
}

func TestStatus(t *testing.T) {
	tests := []struct {
		active, gil bool
		want        string
	}{
		{true, true, "active+gil"},
		{true, false, "active"},
		{false, true, "gil"},
		{false, false, "idle"},
	}
	for _, tt := range tests {
		tr := StackTrace{Active: tt.active, OwnsGIL: tt.gil}
		assert.Equal(t, tt.want, tr.Status())
	}
}
