// Package soil is the soil moisture variant. Values are raw 12-bit ADC
// counts from a capacitive probe.
package soil

import (
	"creasense-go/services/config"
	"creasense-go/services/pipeline"
	"creasense-go/services/variant"
	"creasense-go/types"
)

type Category uint8

const (
	Dry Category = iota
	Humid
	Wet
)

var names = []string{"dry", "humid", "wet"}

func (c Category) String() string {
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

var Parse = variant.Parser[Category](types.KindSoil, names)

func New(cfg *config.Config) (*pipeline.Basic[Category], error) {
	return variant.Build(types.KindSoil, cfg, Parse)
}
