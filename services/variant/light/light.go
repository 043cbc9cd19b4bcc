// Package light is the illuminance variant.
package light

import (
	"creasense-go/services/config"
	"creasense-go/services/pipeline"
	"creasense-go/services/variant"
	"creasense-go/types"
)

// Category is an illuminance band.
type Category uint8

const (
	ExtremelyDark Category = iota
	Dark
	Dim
	Bright
	VeryBright
	ExtremelyBright
)

var names = []string{"extremely_dark", "dark", "dim", "bright", "very_bright", "extremely_bright"}

func (c Category) String() string {
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

var Parse = variant.Parser[Category](types.KindLight, names)

// New returns the light capability described by cfg (lux in, [0,1] out).
func New(cfg *config.Config) (*pipeline.Basic[Category], error) {
	return variant.Build(types.KindLight, cfg, Parse)
}
