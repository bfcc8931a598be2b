package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/mesh"
	"github.com/tribui1912/UavNetSim/internal/packet"
)

func testConfig(n int) *config.Config {
	cfg := config.Default()
	cfg.NumberOfDrones = n
	cfg.Finalize()
	return cfg
}

func dataPacket(cfg *config.Config, id int) *packet.Packet {
	p := packet.New(id, packet.KindData, cfg.DataPacketLength(cfg.AveragePayloadLength),
		0, cfg.PacketLifetime, 0, packet.Unicast, cfg.NumberOfDrones)
	return p
}

func TestBroadcastReachesAllButSender(t *testing.T) {
	cfg := testConfig(4)
	ch := New(cfg)
	ch.Broadcast(dataPacket(cfg, 1), 2, 0)

	assert.Equal(t, 1, ch.InboxLen(0))
	assert.Equal(t, 1, ch.InboxLen(1))
	assert.Equal(t, 0, ch.InboxLen(2))
	assert.Equal(t, 1, ch.InboxLen(3))
}

func TestUnicastReachesOnlyDestination(t *testing.T) {
	cfg := testConfig(4)
	ch := New(cfg)
	ch.Unicast(dataPacket(cfg, 1), 0, 3, 0)

	assert.Equal(t, 0, ch.InboxLen(1))
	assert.Equal(t, 0, ch.InboxLen(2))
	assert.Equal(t, 1, ch.InboxLen(3))
}

func TestCompleteUnprocessed(t *testing.T) {
	cfg := testConfig(2)
	ch := New(cfg)
	p := dataPacket(cfg, 1)
	ch.Unicast(p, 0, 1, 0)
	air := cfg.TransmissionTime(p.LengthBits)

	assert.Empty(t, ch.CompleteUnprocessed(1, air/2))
	done := ch.CompleteUnprocessed(1, air)
	require.Len(t, done, 1)
	assert.True(t, done[0].Processed)
	// already handed out, not returned again
	assert.Empty(t, ch.CompleteUnprocessed(1, air+1))
}

func TestOverlappingTransmittersDedupes(t *testing.T) {
	cfg := testConfig(3)
	ch := New(cfg)
	p1 := dataPacket(cfg, 1)
	p2 := dataPacket(cfg, 2)
	ch.Broadcast(p1, 0, 0)  // lands in inboxes of 1 and 2
	ch.Unicast(p2, 2, 1, 5) // overlaps p1's air time

	span := ch.SpanOf(&InboxEntry{Packet: p1, InsertionTime: 0})
	txs := ch.OverlappingTransmitters([]Span{span})
	require.Len(t, txs, 2)
	assert.Equal(t, 0, txs[0].NodeID)
	assert.Equal(t, 2, txs[1].NodeID)
}

func TestPurgeInboxKeepsRecentAndUnprocessed(t *testing.T) {
	cfg := testConfig(2)
	ch := New(cfg)
	old := dataPacket(cfg, 1)
	fresh := dataPacket(cfg, 2)
	ch.Unicast(old, 0, 1, 0)
	horizon := 2 * cfg.MaxTransmissionTime()
	ch.Unicast(fresh, 0, 1, horizon+100)

	// old completed long ago, fresh still on air
	ch.CompleteUnprocessed(1, horizon+50)
	ch.PurgeInbox(1, horizon+100)
	assert.Equal(t, 1, ch.InboxLen(1))

	// unprocessed entries survive no matter how old
	ch2 := New(cfg)
	ch2.Unicast(old, 0, 1, 0)
	ch2.PurgeInbox(1, 10*horizon)
	assert.Equal(t, 1, ch2.InboxLen(1))
}

func TestSenseIdleUsesSensingRange(t *testing.T) {
	cfg := testConfig(3)
	ch := New(cfg)
	pos := map[int]mesh.Vector3{
		0: {X: 0, Y: 0, Z: 0},
		1: {X: cfg.SensingRange / 2, Y: 0, Z: 0},
		2: {X: cfg.SensingRange * 3, Y: 0, Z: 0},
	}
	ch.SetPositionFunc(func(id int) mesh.Vector3 { return pos[id] })

	assert.True(t, ch.SenseIdle(0))
	ch.Occupy(2)
	assert.True(t, ch.SenseIdle(0), "transmitter beyond sensing range is invisible")
	ch.Occupy(1)
	assert.False(t, ch.SenseIdle(0))
	ch.Release(1)
	assert.True(t, ch.SenseIdle(0))
}
