//go:build soil

package main

import "creasense-go/types"

const builtVariant = types.KindSoil
