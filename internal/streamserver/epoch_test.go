package streamserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskwatch/camstream/internal/frame"
)

func TestEpochState_StartsAtOne(t *testing.T) {
	e := newEpochState()
	assert.Equal(t, uint32(1), e.Current())
}

func TestEpochState_BumpIncrementsAndResetsLatch(t *testing.T) {
	e := newEpochState()
	assert.True(t, e.MarkFirstKeyframeSeen())
	assert.False(t, e.MarkFirstKeyframeSeen(), "second call for the same epoch must not fire again")

	next := e.Bump()
	assert.Equal(t, uint32(2), next)
	assert.True(t, e.MarkFirstKeyframeSeen(), "bump must reset the per-epoch latch")
}

func TestEpochState_CSDRoundTrip(t *testing.T) {
	e := newEpochState()
	_, ok := e.LastCSD()
	assert.False(t, ok, "no CSD before the encoder has ever started")

	csd := frame.CodecSpecificData{SPS: []byte{1, 2}, PPS: []byte{3}, Epoch: 1}
	cfg := frame.StreamConfig{Width: 1280, Height: 720, FPS: 30, BitrateBps: 2_000_000}
	e.SetCSD(csd, cfg)

	got, ok := e.LastCSD()
	require.True(t, ok)
	assert.Equal(t, csd, got)
	assert.Equal(t, cfg, e.LastConfig())
}
