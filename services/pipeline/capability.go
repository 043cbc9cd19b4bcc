package pipeline

import (
	"creasense-go/types"
)

// Capability is what a sensor variant contributes to the pipeline: its
// quantity, its classification and its normalization.
type Capability[C Category] interface {
	Kind() types.Kind
	Classify(v float64) C
	Normalize(v float64) float64
}

// Basic is a Capability backed by a threshold table and a linear range.
type Basic[C Category] struct {
	kind  types.Kind
	table *Table[C]
	rng   Range
}

// NewBasic validates rng and returns a Capability for kind.
func NewBasic[C Category](kind types.Kind, table *Table[C], rng Range) (*Basic[C], error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return &Basic[C]{kind: kind, table: table, rng: rng}, nil
}

func (b *Basic[C]) Kind() types.Kind            { return b.kind }
func (b *Basic[C]) Classify(v float64) C        { return b.table.Classify(v) }
func (b *Basic[C]) Normalize(v float64) float64 { return b.rng.Normalize(v) }
func (b *Basic[C]) Table() *Table[C]            { return b.table }
func (b *Basic[C]) Range() Range                { return b.rng }
