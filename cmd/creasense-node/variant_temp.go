//go:build temp

package main

import "creasense-go/types"

const builtVariant = types.KindTemperature
