package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribui1912/UavNetSim/internal/channel"
	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/event"
	"github.com/tribui1912/UavNetSim/internal/eventbus"
	"github.com/tribui1912/UavNetSim/internal/mesh"
	"github.com/tribui1912/UavNetSim/internal/metrics"
	"github.com/tribui1912/UavNetSim/internal/packet"
	"github.com/tribui1912/UavNetSim/internal/phy"
)

type nodeRig struct {
	cfg   *config.Config
	sched *event.Scheduler
	ch    *channel.Channel
	stats *metrics.Collector
	deps  Deps
}

// newNodeRig wires shared collaborators with every node pinned to the
// origin, so any pair is in communication range.
func newNodeRig(n int) *nodeRig {
	cfg := config.Default()
	cfg.NumberOfDrones = n
	cfg.StaticCase = true
	cfg.Finalize()

	sched := event.NewScheduler()
	ch := channel.New(cfg)
	ch.SetPositionFunc(func(int) mesh.Vector3 { return mesh.Vector3{} })
	stats := metrics.NewCollector()
	return &nodeRig{
		cfg:   cfg,
		sched: sched,
		ch:    ch,
		stats: stats,
		deps: Deps{
			Cfg:   cfg,
			Sched: sched,
			Ch:    ch,
			Calc:  phy.NewCalculator(cfg, func(int) mesh.Vector3 { return mesh.Vector3{} }),
			Stats: stats,
			Bus:   eventbus.New(),
			IDs:   packet.NewIDGen(),
		},
	}
}

func TestEnqueueTxRespectsCap(t *testing.T) {
	r := newNodeRig(2)
	r.cfg.MaxQueueSize = 3
	d := New(0, r.deps)

	for i := 0; i < 3; i++ {
		p := packet.New(i+1, packet.KindData, 100, 0, r.cfg.PacketLifetime,
			0, packet.Unicast, 2)
		assert.True(t, d.EnqueueTx(p))
	}
	overflow := packet.New(9, packet.KindData, 100, 0, r.cfg.PacketLifetime,
		0, packet.Unicast, 2)
	assert.False(t, d.EnqueueTx(overflow))
	assert.Equal(t, 3, d.QueueLen())
}

func TestGeneratedTrafficNeverTargetsSelf(t *testing.T) {
	r := newNodeRig(3)
	d := New(1, r.deps)
	for i := 0; i < 200; i++ {
		d.generate()
	}
	require.NotEmpty(t, d.queue)
	for _, p := range d.queue {
		assert.NotEqual(t, 1, p.Data.DstID)
		assert.Equal(t, 1, p.Data.SrcID)
	}
	assert.Equal(t, 200, len(d.queue))
}

func TestHelloRegistersNeighborAndRoute(t *testing.T) {
	r := newNodeRig(2)
	d := New(0, r.deps)

	hello := packet.New(10001, packet.KindHello, r.cfg.HelloPacketLength,
		0, r.cfg.PacketLifetime, 0, packet.Broadcast, 2)
	hello.Hello = &packet.HelloFields{SrcID: 1}
	d.handlePacket(&channel.InboxEntry{Packet: hello, TransmitterID: 1})

	assert.Equal(t, 1, d.Neighbors())
	assert.True(t, d.Router.HasRoute(1))
}

func TestNeighborExpiry(t *testing.T) {
	r := newNodeRig(2)
	d := New(0, r.deps)
	d.neighbors[1] = 0

	d.sched.Schedule(r.cfg.NeighborTimeout+1, func() {})
	r.sched.RunUntil(r.cfg.NeighborTimeout + 2)
	d.expireNeighbors()
	assert.Zero(t, d.Neighbors())
}

func TestFeedBindsLocalPacketAndTransmits(t *testing.T) {
	r := newNodeRig(2)
	d := New(0, r.deps)
	d.Router.ObserveNeighbor(1) // one-hop route to the destination

	p := packet.New(1, packet.KindData, r.cfg.DataPacketLength(r.cfg.AveragePayloadLength),
		0, r.cfg.PacketLifetime, 0, packet.Unicast, 2)
	p.Data = &packet.DataFields{SrcID: 0, DstID: 1}
	require.True(t, d.EnqueueTx(p))

	d.sched.Schedule(feedInterval, d.feed)
	// far enough for DIFS plus the largest first-attempt backoff, well
	// short of the ACK timeout
	r.sched.RunUntil(1500)

	assert.Equal(t, 1, p.NextHopID)
	assert.Equal(t, 1, r.ch.InboxLen(1), "bound packet reaches the destination inbox")
	assert.True(t, d.MAC.AckPending())
}

func TestReceiveDropsPacketWithExhaustedHopBudget(t *testing.T) {
	r := newNodeRig(2)
	r.cfg.DataLossProbability = 0
	d := New(0, r.deps)

	p := packet.New(1, packet.KindData, r.cfg.DataPacketLength(r.cfg.AveragePayloadLength),
		0, r.cfg.PacketLifetime, 0, packet.Unicast, 2)
	p.Data = &packet.DataFields{SrcID: 1, DstID: 0}
	for p.TTL() < r.cfg.MaxTTL {
		p.IncreaseTTL()
	}

	r.ch.Unicast(p, 1, 0, 0)
	d.sched.Schedule(receiveInterval, d.receive)
	r.sched.RunUntil(r.cfg.TransmissionTime(p.LengthBits) + 10)

	assert.Zero(t, r.stats.DeliveredCount(), "hop budget burned, not even the destination accepts it")
	assert.Equal(t, 1, r.stats.Summarize().TTLDrops)
}

func TestFeedParksUnroutablePacket(t *testing.T) {
	r := newNodeRig(3)
	d := New(0, r.deps)

	p := packet.New(1, packet.KindData, r.cfg.DataPacketLength(r.cfg.AveragePayloadLength),
		0, r.cfg.PacketLifetime, 0, packet.Unicast, 3)
	p.Data = &packet.DataFields{SrcID: 0, DstID: 2}
	require.True(t, d.EnqueueTx(p))

	d.sched.Schedule(feedInterval, d.feed)
	r.sched.RunUntil(feedInterval + 1)

	assert.False(t, d.inFlight, "no route yet, slot stays free")
	rreqQueued := false
	for _, q := range d.queue {
		if q.Kind == packet.KindRreq {
			rreqQueued = true
		}
	}
	assert.True(t, rreqQueued, "discovery flood replaces the data at the queue head")
}
