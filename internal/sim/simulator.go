// Package sim assembles a full simulation: the scheduler, the shared medium,
// the PHY model and one drone per node, and runs the event loop to the
// configured horizon. External control (MQTT, HTTP) never touches the core
// directly; mutations enter through a command channel that is drained on the
// simulated timeline, so a run with the same seed and the same command
// stream replays identically.
package sim

import (
	"github.com/apex/log"

	"github.com/tribui1912/UavNetSim/internal/channel"
	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/event"
	"github.com/tribui1912/UavNetSim/internal/eventbus"
	"github.com/tribui1912/UavNetSim/internal/mesh"
	"github.com/tribui1912/UavNetSim/internal/metrics"
	"github.com/tribui1912/UavNetSim/internal/mobility"
	"github.com/tribui1912/UavNetSim/internal/node"
	"github.com/tribui1912/UavNetSim/internal/packet"
	"github.com/tribui1912/UavNetSim/internal/phy"
)

// cadence of the external-command pump, µs
const commandPumpInterval = 1e5

type Simulator struct {
	Cfg    *config.Config
	Sched  *event.Scheduler
	Ch     *channel.Channel
	Calc   *phy.Calculator
	Stats  *metrics.Collector
	Bus    *eventbus.Bus
	Drones []*node.Drone

	obstacles []mobility.Obstacle
	cmds      chan func(*Simulator)
}

func New(cfg *config.Config, bus *eventbus.Bus, stats *metrics.Collector) *Simulator {
	s := &Simulator{
		Cfg:   cfg,
		Sched: event.NewScheduler(),
		Ch:    channel.New(cfg),
		Stats: stats,
		Bus:   bus,
		cmds:  make(chan func(*Simulator), 64),
	}
	pos := func(id int) mesh.Vector3 { return s.Drones[id].Position() }
	s.Ch.SetPositionFunc(pos)
	s.Calc = phy.NewCalculator(cfg, pos)

	ids := packet.NewIDGen()
	deps := node.Deps{
		Cfg:       cfg,
		Sched:     s.Sched,
		Ch:        s.Ch,
		Calc:      s.Calc,
		Stats:     stats,
		Bus:       bus,
		IDs:       ids,
		Obstacles: s.Obstacles,
	}
	for i := 0; i < cfg.NumberOfDrones; i++ {
		s.Drones = append(s.Drones, node.New(i, deps))
	}
	return s
}

// Obstacles returns the current keep-out set; the mobility models read it
// through this accessor.
func (s *Simulator) Obstacles() []mobility.Obstacle { return s.obstacles }

// Do hands a mutation to the simulation. Safe to call from any goroutine;
// the function runs on the simulated timeline at the next pump tick. A full
// command queue drops the command rather than stalling the caller.
func (s *Simulator) Do(fn func(*Simulator)) bool {
	select {
	case s.cmds <- fn:
		return true
	default:
		return false
	}
}

// SetTarget redirects a drone toward a fixed position.
func (s *Simulator) SetTarget(nodeID int, target mesh.Vector3) bool {
	return s.Do(func(s *Simulator) {
		if nodeID < 0 || nodeID >= len(s.Drones) {
			return
		}
		log.WithField("node", nodeID).Infof("external target (%.0f, %.0f, %.0f)",
			target.X, target.Y, target.Z)
		s.Drones[nodeID].Mobility.SetTarget(target)
	})
}

// AddObstacle registers a keep-out sphere future waypoints avoid.
func (s *Simulator) AddObstacle(o mobility.Obstacle) bool {
	return s.Do(func(s *Simulator) {
		log.Infof("obstacle added at (%.0f, %.0f, %.0f) r=%.0f",
			o.Center.X, o.Center.Y, o.Center.Z, o.Radius)
		s.obstacles = append(s.obstacles, o)
	})
}

func (s *Simulator) pump() {
	for {
		select {
		case fn := <-s.cmds:
			fn(s)
		default:
			s.Sched.Schedule(commandPumpInterval, s.pump)
			return
		}
	}
}

// Run executes the simulation to its time horizon.
func (s *Simulator) Run() {
	log.Infof("simulation starts: %d drones, %.0fs horizon, seed %d",
		s.Cfg.NumberOfDrones, s.Cfg.SimTime/1e6, s.Cfg.Seed)
	for _, d := range s.Drones {
		d.Start()
	}
	s.Sched.Schedule(commandPumpInterval, s.pump)
	s.Sched.RunUntil(s.Cfg.SimTime)
	log.Infof("simulation done at %.0fus, %d packets delivered",
		s.Sched.Now(), s.Stats.DeliveredCount())
}

// NodeState is a point-in-time snapshot of one drone, served to external
// observers.
type NodeState struct {
	ID             int     `json:"id"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	QueueLen       int     `json:"queue_len"`
	Neighbors      int     `json:"neighbors"`
	Routes         int     `json:"routes"`
	ResidualEnergy float64 `json:"residual_energy"`
	Sleeping       bool    `json:"sleeping"`
	SubChannel     int     `json:"sub_channel"`
}

// Snapshot captures the current state of every drone.
func (s *Simulator) Snapshot() []NodeState {
	out := make([]NodeState, len(s.Drones))
	for i, d := range s.Drones {
		pos := d.Position()
		out[i] = NodeState{
			ID:             d.ID,
			X:              pos.X,
			Y:              pos.Y,
			Z:              pos.Z,
			QueueLen:       d.QueueLen(),
			Neighbors:      d.Neighbors(),
			Routes:         d.Router.RouteCount(),
			ResidualEnergy: d.Battery.Residual(),
			Sleeping:       d.Sleeping(),
			SubChannel:     d.ChannelID(),
		}
	}
	return out
}
