package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribui1912/UavNetSim/internal/packet"
)

func dataPacket(id, lengthBits int, creation float64, hops int) *packet.Packet {
	p := packet.New(id, packet.KindData, lengthBits, creation, 10e6, 0, packet.Unicast, 2)
	for i := 0; i < hops; i++ {
		p.IncreaseTTL()
	}
	return p
}

func TestDeliveredIsIdempotentPerPacket(t *testing.T) {
	c := NewCollector()
	p := dataPacket(1, 8000, 0, 1)

	assert.True(t, c.Delivered(p, 2000))
	assert.False(t, c.Delivered(p, 3000), "redundant reception must not count twice")
	assert.Equal(t, 1, c.DeliveredCount())
}

func TestSummarizeHeadlineFigures(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 4; i++ {
		c.AddGenerated()
	}
	c.AddControlSent()
	c.AddControlSent()
	c.AddCollision()

	// two deliveries: 2 ms over one hop and 4 ms over three hops
	require.True(t, c.Delivered(dataPacket(1, 8000, 0, 1), 2000))
	require.True(t, c.Delivered(dataPacket(2, 8000, 1000, 3), 5000))
	c.AddMACDelay(500)
	c.AddMACDelay(1500)

	s := c.Summarize()
	assert.Equal(t, 4, s.Generated)
	assert.Equal(t, 2, s.Delivered)
	assert.InDelta(t, 50.0, s.PDR, 1e-9)
	assert.InDelta(t, 3.0, s.AvgE2EDelayMs, 1e-9)
	assert.InDelta(t, 2.0, s.AvgHopCount, 1e-9)
	assert.InDelta(t, 1.0, s.RoutingLoad, 1e-9)
	assert.InDelta(t, 1.0, s.AvgMACDelayMs, 1e-9)
	assert.Equal(t, 1, s.Collisions)
	assert.Greater(t, s.JitterMs, 0.0)
}

func TestSummarizeEmptyRunHasNoNaNs(t *testing.T) {
	s := NewCollector().Summarize()

	assert.Zero(t, s.PDR)
	assert.Zero(t, s.AvgE2EDelayMs)
	assert.Zero(t, s.AvgThroughputKbs)
	assert.Zero(t, s.RoutingLoad)
	assert.Zero(t, s.AvgMACDelayMs)
}

func TestDropCountersSurfaceInSummary(t *testing.T) {
	c := NewCollector()
	c.AddQueueDrop()
	c.AddExpiredDrop()
	c.AddExpiredDrop()
	c.AddNoRouteDrop()
	c.AddTTLDrop()

	s := c.Summarize()
	assert.Equal(t, 1, s.QueueDrops)
	assert.Equal(t, 2, s.ExpiredDrops)
	assert.Equal(t, 1, s.NoRouteDrops)
	assert.Equal(t, 1, s.TTLDrops)
}

func TestFlushWritesReadableJSON(t *testing.T) {
	c := NewCollector()
	c.AddGenerated()
	require.True(t, c.Delivered(dataPacket(1, 8000, 0, 1), 2000))

	file := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, c.Flush(file))

	raw, err := os.ReadFile(file)
	require.NoError(t, err)

	var s Summary
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, c.RunID.String(), s.RunID)
	assert.Equal(t, 1, s.Delivered)
	assert.InDelta(t, 100.0, s.PDR, 1e-9)
}
