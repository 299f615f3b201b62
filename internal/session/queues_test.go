package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	camerrors "github.com/duskwatch/camstream/internal/errors"
	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/wire"
)

func TestControlQueue_DrainPreservesOrderAndPayloads(t *testing.T) {
	q := newControlQueue()
	require.NoError(t, q.Post(wire.NewMessage("CAPS_OK")))
	require.NoError(t, q.Post(wire.NewMessage("CSD").WithUint64("sps", 2).WithUint64("pps", 1), []byte{1, 2}, []byte{3}))

	items := q.Drain()
	require.Len(t, items, 2)
	assert.Equal(t, "CAPS_OK", items[0].Message.Tag)
	assert.Nil(t, items[0].Payloads)
	assert.Equal(t, "CSD", items[1].Message.Tag)
	assert.Equal(t, [][]byte{{1, 2}, {3}}, items[1].Payloads)

	assert.Nil(t, q.Drain(), "drain empties the queue")
}

func TestControlQueue_FullReturnsBusError(t *testing.T) {
	q := &controlQueue{cap: 1}
	require.NoError(t, q.Post(wire.NewMessage("A")))
	err := q.Post(wire.NewMessage("B"))
	require.Error(t, err)
	assert.True(t, camerrors.IsBusError(err))
}

func TestControlQueue_ClosedRejectsPost(t *testing.T) {
	q := newControlQueue()
	q.Close()
	err := q.Post(wire.NewMessage("A"))
	require.Error(t, err)
	assert.True(t, camerrors.IsBusError(err))
}

func TestNewFrameQueue_UsesRequestedCapacity(t *testing.T) {
	fq := newFrameQueue(FrameQueueTierLow)
	assert.Equal(t, 0, fq.Len())
	for i := 0; i < FrameQueueTierLow; i++ {
		require.True(t, fq.Publish(frame.EncodedFrame{}))
	}
	assert.False(t, fq.Publish(frame.EncodedFrame{}), "non-keyframe beyond the tier capacity is dropped")
	assert.Equal(t, FrameQueueTierLow, fq.Len())
}
