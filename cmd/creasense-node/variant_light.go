//go:build light

package main

import "creasense-go/types"

const builtVariant = types.KindLight
