package indicator

import (
	"testing"
	"time"

	"creasense-go/bus"
	"creasense-go/services/config"
	"creasense-go/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recPin struct{ levels []bool }

func (p *recPin) Set(high bool) { p.levels = append(p.levels, high) }

func (p *recPin) last() bool { return p.levels[len(p.levels)-1] }

func TestIndicator_SolidAndOff(t *testing.T) {
	pin := &recPin{}
	ind := New(pin, config.Indicator{Blink: 500 * time.Millisecond}, nil)
	assert.False(t, pin.last())

	ind.Set(types.IndicatorOn)
	assert.True(t, pin.last())
	ind.Tick(time.Unix(10, 0))
	assert.True(t, pin.last(), "solid ignores ticks")

	n := len(pin.levels)
	ind.Set(types.IndicatorOn)
	assert.Len(t, pin.levels, n, "same mode does not touch the pin")

	ind.Set(types.IndicatorOff)
	assert.False(t, pin.last())
	assert.Equal(t, types.IndicatorOff, ind.Mode())
}

func TestIndicator_Blinks(t *testing.T) {
	pin := &recPin{}
	ind := New(pin, config.Indicator{Blink: 500 * time.Millisecond}, nil)
	t0 := time.Unix(100, 0)

	ind.Set(types.IndicatorBlinking)
	ind.Tick(t0)
	assert.True(t, ind.Lit())

	var got []bool
	for ms := 100; ms <= 2000; ms += 100 {
		ind.Set(types.IndicatorBlinking)
		ind.Tick(t0.Add(time.Duration(ms) * time.Millisecond))
		if ms%500 == 0 {
			got = append(got, ind.Lit())
		}
	}
	assert.Equal(t, []bool{false, true, false, true}, got)

	ind.Set(types.IndicatorOn)
	assert.True(t, ind.Lit())
}

func TestIndicator_ActiveLowAndPublish(t *testing.T) {
	b := bus.NewBus(4)
	pin := &recPin{}
	ind := New(pin, config.Indicator{ActiveLow: true}, b.NewConnection("led"))
	assert.True(t, pin.last(), "off drives an active-low pin high")

	ind.Set(types.IndicatorOn)
	assert.False(t, pin.last())

	m, ok := b.Retained(TopicIndicator)
	require.True(t, ok)
	st, ok := m.Payload.(types.IndicatorStatus)
	require.True(t, ok)
	assert.Equal(t, types.IndicatorOn, st.Mode)
}

func TestIndicator_FollowsLinkStates(t *testing.T) {
	ind := New(nil, config.Indicator{}, nil)
	for _, tc := range []struct {
		state types.LinkState
		want  types.IndicatorMode
	}{
		{types.LinkDisconnected, types.IndicatorOff},
		{types.LinkConnecting, types.IndicatorBlinking},
		{types.LinkConnected, types.IndicatorOn},
	} {
		ind.Set(types.IndicatorFor(tc.state))
		assert.Equal(t, tc.want, ind.Mode(), tc.state.String())
	}
}
