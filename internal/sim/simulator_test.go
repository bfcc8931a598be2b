package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/eventbus"
	"github.com/tribui1912/UavNetSim/internal/mesh"
	"github.com/tribui1912/UavNetSim/internal/metrics"
	"github.com/tribui1912/UavNetSim/internal/mobility"
	"github.com/tribui1912/UavNetSim/internal/packet"
)

// scriptedConfig builds a quiet deterministic setup: static nodes, no
// spontaneous traffic, no random channel loss.
func scriptedConfig(n int) *config.Config {
	cfg := config.Default()
	cfg.NumberOfDrones = n
	cfg.StaticCase = true
	cfg.DataLossProbability = 0
	cfg.PacketGenerationRate = 1e-9 // first Poisson arrival far beyond the horizon
	cfg.SimTime = 3e6
	cfg.Finalize()
	return cfg
}

func newScriptedSim(cfg *config.Config, positions []mesh.Vector3) *Simulator {
	s := New(cfg, eventbus.New(), metrics.NewCollector())
	for i, p := range positions {
		s.Drones[i].Mobility.PlaceAt(p)
	}
	return s
}

// injectData enqueues one data packet on src shortly after t=0, so route
// discovery happens inside the run.
func (s *Simulator) injectData(src, dst int) *packet.Packet {
	d := s.Drones[src]
	p := packet.New(1, packet.KindData, s.Cfg.DataPacketLength(s.Cfg.AveragePayloadLength),
		0, s.Cfg.PacketLifetime, d.ChannelID(), packet.Unicast, s.Cfg.NumberOfDrones)
	p.Data = &packet.DataFields{SrcID: src, DstID: dst}
	s.Stats.AddGenerated()
	d.EnqueueTx(p)
	return p
}

func TestTwoNodesInRangeDeliverWithOneHop(t *testing.T) {
	cfg := scriptedConfig(2)
	s := newScriptedSim(cfg, []mesh.Vector3{
		{X: 0, Y: 0, Z: 0},
		{X: 100, Y: 0, Z: 0},
	})
	s.injectData(0, 1)
	s.Run()

	sum := s.Stats.Summarize()
	assert.Equal(t, 1, sum.Delivered)
	assert.Equal(t, 100.0, sum.PDR)
	assert.Equal(t, 1.0, sum.AvgHopCount)
	// exactly one acknowledged data exchange
	require.Len(t, s.Stats.MACDelaySamples(), 1)
	assert.Zero(t, sum.ExpiredDrops)
}

func TestOutOfRangeExhaustsRetries(t *testing.T) {
	cfg := scriptedConfig(2)
	maxRange := s0MaxRange(cfg)
	s := newScriptedSim(cfg, []mesh.Vector3{
		{X: 0, Y: 0, Z: 0},
		{X: maxRange * 1.5, Y: 0, Z: 0},
	})
	// hand node 0 a route it could never have discovered, so the MAC gets
	// to fight for an ACK that cannot come
	s.Drones[0].Router.ObserveNeighbor(1)
	p := s.injectData(0, 1)
	s.Run()

	sum := s.Stats.Summarize()
	assert.Equal(t, 0, sum.Delivered)
	assert.Equal(t, 0.0, sum.PDR)
	assert.Equal(t, cfg.MaxRetransmissionAttempt, p.Attempts[0])
	require.Len(t, s.Stats.MACDelaySamples(), 1, "the abandoned exchange records its channel-access delay")
}

func s0MaxRange(cfg *config.Config) float64 {
	probe := New(cfg, eventbus.New(), metrics.NewCollector())
	return probe.Calc.MaxCommRange()
}

func TestChainDiscoversTwoHopRoute(t *testing.T) {
	cfg := scriptedConfig(3)
	s := newScriptedSim(cfg, []mesh.Vector3{
		{X: 0, Y: 0, Z: 0},
		{X: 200, Y: 0, Z: 0},
		{X: 400, Y: 0, Z: 0}, // out of direct reach of node 0
	})
	s.injectData(0, 2)
	s.Run()

	sum := s.Stats.Summarize()
	require.Equal(t, 1, sum.Delivered)
	assert.Equal(t, 2.0, sum.AvgHopCount)
	assert.True(t, s.Drones[0].Router.HasRoute(2))
}

func TestDepletedNodeGoesDarkOnce(t *testing.T) {
	cfg := scriptedConfig(2)
	cfg.InitialEnergy = cfg.EnergyThreshold + 1 // dies at the first monitor tick
	s := New(cfg, eventbus.New(), metrics.NewCollector())
	sub := s.Bus.Subscribe()
	s.Run()

	slept := 0
	for {
		select {
		case ev := <-sub:
			if ev.Type == eventbus.EventNodeSlept {
				slept++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 2, slept, "each node sleeps exactly once")
	for _, d := range s.Drones {
		assert.True(t, d.Sleeping())
		assert.Zero(t, d.QueueLen(), "a dark node accumulates no work")
	}
}

func TestExternalTargetAppliedViaCommandPump(t *testing.T) {
	cfg := scriptedConfig(2)
	cfg.StaticCase = false
	cfg.SimTime = 10e6
	s := newScriptedSim(cfg, []mesh.Vector3{
		{X: 0, Y: 0, Z: 0},
		{X: 100, Y: 0, Z: 0},
	})
	target := mesh.Vector3{X: 50, Y: 50, Z: 20}
	require.True(t, s.SetTarget(0, target))
	require.True(t, s.AddObstacle(mobility.Obstacle{Center: mesh.Vector3{X: 300, Y: 300, Z: 50}, Radius: 100}))
	s.Run()

	assert.Equal(t, target, s.Drones[0].Position(), "drone flew to the commanded point and held")
	assert.Len(t, s.Obstacles(), 1)
}

func TestSameSeedReplaysIdentically(t *testing.T) {
	run := func() metrics.Summary {
		cfg := config.Default()
		cfg.NumberOfDrones = 6
		cfg.SimTime = 3e6
		cfg.Finalize()
		s := New(cfg, eventbus.New(), metrics.NewCollector())
		s.Run()
		sum := s.Stats.Summarize()
		sum.RunID = "" // the run id is the only intentionally random output
		return sum
	}
	assert.Equal(t, run(), run())
}

func TestScenarioOverridesFoldIntoConfig(t *testing.T) {
	sc := &Scenario{
		DurationSeconds: 10,
		Seed:            42,
		Drones:          DroneCfg{Count: 4, Static: true},
		Traffic:         TrafficCfg{PacketsPerSecond: 2, PayloadBytes: 512},
		Radio:           RadioCfg{SubChannels: 1},
	}
	cfg := sc.Config()
	assert.Equal(t, 1e7, cfg.SimTime)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 4, cfg.NumberOfDrones)
	assert.Equal(t, 5, cfg.MaxTTL, "derived values follow the overrides")
	assert.Equal(t, 512*8, cfg.AveragePayloadLength)
	assert.True(t, cfg.StaticCase)
	assert.Equal(t, 1, cfg.NumberOfSubChannels)
}
