// Package variant builds a sensor variant's pipeline capability from its
// configuration. The per-variant packages own the category enumerations.
package variant

import (
	"fmt"

	"creasense-go/errcode"
	"creasense-go/services/config"
	"creasense-go/services/pipeline"
	"creasense-go/types"
)

// Build turns the classify and normalize sections of cfg into a capability.
// Band minima are not used: every bound is inclusive-low.
func Build[C pipeline.Category](kind types.Kind, cfg *config.Config, parse func(string) (C, error)) (*pipeline.Basic[C], error) {
	if types.Kind(cfg.Node.Kind) != kind {
		return nil, errcode.Newf(errcode.UnknownKind, "variant",
			fmt.Sprintf("config is for %q, not %q", cfg.Node.Kind, kind))
	}
	bands := make([]pipeline.Band[C], 0, len(cfg.Classify.Bands))
	for _, b := range cfg.Classify.Bands {
		label, err := parse(b.Label)
		if err != nil {
			return nil, err
		}
		bands = append(bands, pipeline.Band[C]{UpperBound: b.Max, Label: label})
	}
	terminal, err := parse(cfg.Classify.Terminal)
	if err != nil {
		return nil, err
	}
	table, err := pipeline.NewTable(bands, terminal)
	if err != nil {
		return nil, err
	}
	return pipeline.NewBasic(kind, table, pipeline.Range{Min: cfg.Normalize.Min, Max: cfg.Normalize.Max})
}

// Parser returns a label parser over names, indexed by category value.
func Parser[C ~uint8](kind types.Kind, names []string) func(string) (C, error) {
	return func(s string) (C, error) {
		for i, n := range names {
			if n == s {
				return C(i), nil
			}
		}
		return 0, errcode.Newf(errcode.ConfigInvalid, "variant."+string(kind), "unknown category "+s)
	}
}
