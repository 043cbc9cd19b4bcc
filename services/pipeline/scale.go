package pipeline

import (
	"fmt"
	"math"

	"creasense-go/errcode"
	"creasense-go/x/mathx"
)

// Range is the span of raw values mapped linearly onto [0,1].
type Range struct {
	Min, Max float64
}

func (r Range) Validate() error {
	if !mathx.Finite(r.Min) || !mathx.Finite(r.Max) || r.Max <= r.Min {
		return errcode.Newf(errcode.ConfigInvalid, "pipeline.range", fmt.Sprintf("[%g,%g]", r.Min, r.Max))
	}
	return nil
}

// Normalize returns clamp((v-Min)/(Max-Min), 0, 1). A degenerate range
// yields 0.
func (r Range) Normalize(v float64) float64 {
	span := r.Max - r.Min
	if !(span > 0) || !mathx.Finite(span) {
		return 0
	}
	x := (v - r.Min) / span
	if math.IsNaN(x) {
		return 0
	}
	return mathx.Clamp(x, 0, 1)
}
