package flamegraph

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
)

// SVGOptions configures the flame graph SVG output.
type SVGOptions struct {
	Title       string
	Width       int
	Height      int
	ColorScheme string  // "hot", "cold", "mem"
	Inverted    bool    // icicle layout: root at the top, callees below
	MinWidth    float64 // frames narrower than this many pixels are omitted
}

// DefaultSVGOptions returns the options stackspy renders with.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		Title:       "stackspy",
		Width:       1200,
		ColorScheme: "hot",
		Inverted:    true,
		MinWidth:    1,
	}
}

// frame represents a stack frame in the flame graph tree.
type frame struct {
	name     string
	value    uint64
	children map[string]*frame
}

func newFrame(name string) *frame {
	return &frame{
		name:     name,
		children: make(map[string]*frame),
	}
}

const (
	frameHeight  = 16
	fontSize     = 12
	headerHeight = 40
	margin       = 10
)

// Render draws path totals as an SVG flame graph.
func Render(totals map[string]uint64, svg io.Writer, opts SVGOptions) error {
	return GenerateSVG(strings.NewReader(strings.Join(FoldedLines(totals), "\n")), svg, opts)
}

// GenerateSVG renders collapsed "{path} {count}" lines as an SVG flame graph.
// Input without samples yields a placeholder graph rather than an error.
func GenerateSVG(collapsed io.Reader, svg io.Writer, opts SVGOptions) error {
	if opts.Width == 0 {
		opts.Width = 1200
	}

	stacks, err := ParseFolded(collapsed)
	if err != nil {
		return fmt.Errorf("cannot read collapsed stacks: %w", err)
	}

	// Parse collapsed stacks into tree
	root := newFrame("all")
	for stackLine, count := range stacks {
		node := root
		for _, fname := range strings.Split(stackLine, ";") {
			child, ok := node.children[fname]
			if !ok {
				child = newFrame(fname)
				node.children[fname] = child
			}
			child.value += count
			node = child
		}
		root.value += count
	}

	maxDepth := getMaxDepth(root, 0)
	chartHeight := (maxDepth + 2) * frameHeight
	if opts.Height == 0 {
		opts.Height = chartHeight + headerHeight + 20
	}

	bw := bufio.NewWriter(svg)
	fmt.Fprintf(bw, `<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg1.1.dtd">
<svg version="1.1" width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">
<style>
  .func:hover { stroke:black; stroke-width:0.5; cursor:pointer; }
  text { font-family: monospace; font-size: %dpx; }
</style>
<rect x="0" y="0" width="%d" height="%d" fill="white"/>
<text x="%d" y="20" text-anchor="middle" style="font-size:16px; font-weight:bold;">%s</text>
`,
		opts.Width, opts.Height, fontSize,
		opts.Width, opts.Height,
		opts.Width/2, html.EscapeString(opts.Title))

	if root.value == 0 {
		fmt.Fprintf(bw, `<text x="%d" y="35" text-anchor="middle" style="font-size:12px; fill:#666;">No samples in the selected range</text>
`, opts.Width/2)
	} else {
		fmt.Fprintf(bw, `<text x="%d" y="35" text-anchor="middle" style="font-size:12px; fill:#666;">(%d samples)</text>
`, opts.Width/2, root.value)

		r := renderer{
			w:        bw,
			total:    root.value,
			scheme:   opts.ColorScheme,
			inverted: opts.Inverted,
			minWidth: opts.MinWidth,
			top:      headerHeight,
			bottom:   opts.Height - 20,
		}
		r.frame(root, margin, float64(opts.Width-2*margin), 0)
	}

	fmt.Fprintln(bw, "</svg>")
	return bw.Flush()
}

type renderer struct {
	w        io.Writer
	total    uint64
	scheme   string
	inverted bool
	minWidth float64
	top      int
	bottom   int
}

// y returns the top edge of a frame at depth.
func (r *renderer) y(depth int) int {
	if r.inverted {
		return r.top + depth*frameHeight
	}
	return r.bottom - (depth+1)*frameHeight
}

func (r *renderer) frame(f *frame, x, width float64, depth int) {
	if width < r.minWidth || f.value == 0 {
		return
	}

	y := r.y(depth)
	red, green, blue := frameColor(depth, r.scheme)

	fmt.Fprintf(r.w, `<g class="func">
<rect x="%.1f" y="%d" width="%.1f" height="%d" fill="rgb(%d,%d,%d)" rx="1"/>
`, x, y, width, frameHeight-1, red, green, blue)

	// Add text if frame is wide enough
	if width > 40 {
		label := f.name
		maxChars := int((width - 4) / 7) // approximate char width
		if len(label) > maxChars {
			if maxChars > 3 {
				label = label[:maxChars-2] + ".."
			} else {
				label = ""
			}
		}
		if label != "" {
			fmt.Fprintf(r.w, `<text x="%.1f" y="%d" fill="black">%s</text>
`, x+2, y+frameHeight-4, html.EscapeString(label))
		}
	}

	pctStr := fmt.Sprintf("%.2f%%", float64(f.value)/float64(r.total)*100)
	fmt.Fprintf(r.w, `<title>%s (%d samples, %s)</title>
</g>
`, html.EscapeString(f.name), f.value, pctStr)

	// Sort children for deterministic output
	childNames := make([]string, 0, len(f.children))
	for name := range f.children {
		childNames = append(childNames, name)
	}
	sort.Strings(childNames)

	childX := x
	for _, name := range childNames {
		child := f.children[name]
		childWidth := width * float64(child.value) / float64(f.value)
		r.frame(child, childX, childWidth, depth+1)
		childX += childWidth
	}
}

func frameColor(depth int, scheme string) (int, int, int) {
	// Deterministic color based on depth
	switch scheme {
	case "cold":
		g := 50 + (depth*30)%150
		b := 150 + (depth*20)%100
		return 30, g, b
	case "mem":
		g := 190 + (depth*15)%60
		return 30, g, 30
	default: // "hot"
		r := 200 + (depth*15)%55
		g := 50 + (depth*40)%150
		return r, g, 30
	}
}

func getMaxDepth(f *frame, depth int) int {
	max := depth
	for _, child := range f.children {
		d := getMaxDepth(child, depth+1)
		if d > max {
			max = d
		}
	}
	return max
}
