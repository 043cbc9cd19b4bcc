package soil

import (
	"testing"

	"creasense-go/services/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	gapStyle = `
classify:
  bands:
    - {label: dry, min: 0, max: 300}
    - {label: humid, min: 301, max: 700}
  terminal: wet
`
	equalStyle = `
classify:
  bands:
    - {label: dry, min: 0, max: 300}
    - {label: humid, min: 300, max: 700}
  terminal: wet
`
)

func TestClassify_BothBandStyles(t *testing.T) {
	for name, doc := range map[string]string{"gap": gapStyle, "equal": equalStyle} {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.Parse("soil", []byte(doc))
			require.NoError(t, err)
			c, err := New(cfg)
			require.NoError(t, err)

			assert.Equal(t, Dry, c.Classify(150))
			assert.Equal(t, Dry, c.Classify(300))
			assert.Equal(t, Humid, c.Classify(300.5))
			assert.Equal(t, Humid, c.Classify(700))
			assert.Equal(t, Wet, c.Classify(701))
			assert.Equal(t, Wet, c.Classify(4095))
		})
	}
}

func TestNormalize(t *testing.T) {
	cfg, err := config.Parse("soil", nil)
	require.NoError(t, err)
	c, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, 0.0, c.Normalize(0))
	assert.Equal(t, 1.0, c.Normalize(950))
	assert.Equal(t, 1.0, c.Normalize(4095))
	assert.InDelta(t, 150.0/950, c.Normalize(150), 1e-12)
}
