//go:build !light && !soil && !temp

package main

import "creasense-go/types"

// Without a variant tag the variant comes from -variant, default light.
const builtVariant types.Kind = ""
