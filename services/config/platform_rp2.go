//go:build rp2040 || rp2350

package config

// Platform names the build's platform overlay under configs/platform.
const Platform = "rp2"
