package config

import (
	"embed"
	"sort"
	"strings"
)

// Per-variant defaults. The file name (without extension) is the variant.
//
//go:embed configs/*.yaml
var embeddedConfigs embed.FS

// Per-platform overlays, applied on top of the variant defaults.
//
//go:embed configs/platform/*.yaml
var platformConfigs embed.FS

// EmbeddedConfigLookup allows overriding how defaults are resolved.
var EmbeddedConfigLookup = func(variant string) ([]byte, bool) {
	b, err := embeddedConfigs.ReadFile("configs/" + variant + ".yaml")
	if err != nil {
		return nil, false
	}
	return b, true
}

// PlatformOverlayLookup resolves the overlay for a platform. A missing
// overlay is not an error.
var PlatformOverlayLookup = func(platform string) ([]byte, bool) {
	b, err := platformConfigs.ReadFile("configs/platform/" + platform + ".yaml")
	if err != nil {
		return nil, false
	}
	return b, true
}

// Variants lists the variants with embedded defaults.
func Variants() []string {
	entries, err := embeddedConfigs.ReadDir("configs")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out
}
