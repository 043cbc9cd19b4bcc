// Package temp is the air temperature variant. Humidity, when the driver
// reports it, rides along in Reading.Extra and is not classified.
package temp

import (
	"creasense-go/services/config"
	"creasense-go/services/pipeline"
	"creasense-go/services/variant"
	"creasense-go/types"
)

// Category is a temperature band in degrees Celsius.
type Category uint8

const (
	VeryCold Category = iota
	Cold
	Cool
	Mild
	Warm
	Hot
)

var names = []string{"very_cold", "cold", "cool", "mild", "warm", "hot"}

func (c Category) String() string {
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

var Parse = variant.Parser[Category](types.KindTemperature, names)

func New(cfg *config.Config) (*pipeline.Basic[Category], error) {
	return variant.Build(types.KindTemperature, cfg, Parse)
}
