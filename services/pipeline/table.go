// Package pipeline turns raw sensor readings into classified, normalized
// telemetry and drives the node's cooperative main loop.
package pipeline

import (
	"fmt"
	"math"

	"creasense-go/errcode"
	"creasense-go/x/mathx"
)

// Category is a variant's closed set of labels.
type Category interface {
	comparable
	fmt.Stringer
}

// Band maps every value up to and including UpperBound (and above the
// previous band's bound) to Label.
type Band[C Category] struct {
	UpperBound float64
	Label      C
}

// Table is an immutable ordered threshold table. Values above the last
// band's UpperBound map to the terminal label.
type Table[C Category] struct {
	bands    []Band[C]
	terminal C
}

// NewTable validates and copies bands: at least one band, finite strictly
// increasing bounds and labels unique across bands and terminal.
func NewTable[C Category](bands []Band[C], terminal C) (*Table[C], error) {
	if len(bands) == 0 {
		return nil, errcode.Newf(errcode.ConfigInvalid, "pipeline.table", "no bands")
	}
	seen := map[C]bool{terminal: true}
	for i, b := range bands {
		if !mathx.Finite(b.UpperBound) {
			return nil, errcode.Newf(errcode.ConfigInvalid, "pipeline.table",
				fmt.Sprintf("band %s: bound not finite", b.Label))
		}
		if i > 0 && b.UpperBound <= bands[i-1].UpperBound {
			return nil, errcode.Newf(errcode.ConfigInvalid, "pipeline.table",
				fmt.Sprintf("band %s: bound %g not above %g", b.Label, b.UpperBound, bands[i-1].UpperBound))
		}
		if seen[b.Label] {
			return nil, errcode.Newf(errcode.ConfigInvalid, "pipeline.table",
				fmt.Sprintf("duplicate label %s", b.Label))
		}
		seen[b.Label] = true
	}
	return &Table[C]{bands: append([]Band[C](nil), bands...), terminal: terminal}, nil
}

// Classify returns the label of the first band whose bound is >= v, so a
// value equal to a bound belongs to the lower band. NaN maps to the first
// band.
func (t *Table[C]) Classify(v float64) C {
	if math.IsNaN(v) {
		return t.bands[0].Label
	}
	for _, b := range t.bands {
		if v <= b.UpperBound {
			return b.Label
		}
	}
	return t.terminal
}

// Labels returns every label in ascending order, terminal last.
func (t *Table[C]) Labels() []C {
	out := make([]C, 0, len(t.bands)+1)
	for _, b := range t.bands {
		out = append(out, b.Label)
	}
	return append(out, t.terminal)
}

// Rank returns the position of c in Labels, or -1.
func (t *Table[C]) Rank(c C) int {
	for i, l := range t.Labels() {
		if l == c {
			return i
		}
	}
	return -1
}
