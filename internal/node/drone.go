// Package node ties one UAV together: traffic generation, the transmit
// queue and its feeder, the periodic inbox poll that stands in for a
// receiver frontend, hello beaconing, mobility stepping and the battery
// monitor. All activity lives on the shared event scheduler.
package node

import (
	"math/rand"

	"github.com/apex/log"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tribui1912/UavNetSim/internal/channel"
	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/energy"
	"github.com/tribui1912/UavNetSim/internal/event"
	"github.com/tribui1912/UavNetSim/internal/eventbus"
	"github.com/tribui1912/UavNetSim/internal/mac"
	"github.com/tribui1912/UavNetSim/internal/mesh"
	"github.com/tribui1912/UavNetSim/internal/metrics"
	"github.com/tribui1912/UavNetSim/internal/mobility"
	"github.com/tribui1912/UavNetSim/internal/packet"
	"github.com/tribui1912/UavNetSim/internal/phy"
	"github.com/tribui1912/UavNetSim/internal/routing"
)

// poll cadences, µs
const (
	feedInterval     = 10
	receiveInterval  = 5
	mobilityInterval = 1e5
	energyInterval   = 1e5
	helloJitterMax   = 1000
)

type Drone struct {
	ID  int
	cfg *config.Config

	sched  *event.Scheduler
	ch     *channel.Channel
	calc   *phy.Calculator
	stats  *metrics.Collector
	bus    *eventbus.Bus
	ids    *packet.IDGen
	logger *log.Entry

	rng *rand.Rand

	Mobility *mobility.RandomWaypoint3D
	Battery  *energy.Model
	MAC      *mac.CSMA
	Router   *routing.AODV

	channelID int
	queue     []*packet.Packet
	inFlight  bool // head-of-line slot held by the MAC
	sleeping  bool

	neighbors  map[int]float64 // id -> last hello heard, µs
	trafficGap distuv.Exponential
}

// Deps bundles the shared collaborators a drone is built from. Per-drone
// randomness is derived from the run seed and the node id so that runs with
// the same seed replay identically.
type Deps struct {
	Cfg       *config.Config
	Sched     *event.Scheduler
	Ch        *channel.Channel
	Calc      *phy.Calculator
	Stats     *metrics.Collector
	Bus       *eventbus.Bus
	IDs       *packet.IDGen
	Obstacles mobility.ObstacleFunc
}

func New(id int, d Deps) *Drone {
	seed := d.Cfg.Seed + int64(id)
	rng := rand.New(rand.NewSource(seed))
	mobRng := rand.New(rand.NewSource(seed + 2))
	macRng := rand.New(rand.NewSource(seed + 5))

	n := &Drone{
		ID:        id,
		cfg:       d.Cfg,
		sched:     d.Sched,
		ch:        d.Ch,
		calc:      d.Calc,
		stats:     d.Stats,
		bus:       d.Bus,
		ids:       d.IDs,
		logger:    log.WithField("node", id),
		rng:       rng,
		channelID: rng.Intn(d.Cfg.NumberOfSubChannels),
		neighbors: make(map[int]float64),
	}
	n.Mobility = mobility.NewRandomWaypoint3D(d.Cfg, mobRng, mobility.RandomStart(d.Cfg, rng), d.Obstacles)
	n.Battery = energy.NewModel(d.Cfg, n.Mobility.Speed, n.onSleep)
	n.MAC = mac.NewCSMA(d.Cfg, d.Sched, d.Ch, macRng, d.Stats, n.Battery, n, id)
	n.Router = routing.NewAODV(d.Cfg, d.Sched, d.Ch, d.Stats, d.Bus, n.Battery, d.IDs, n, id)
	n.trafficGap = distuv.Exponential{
		Rate: d.Cfg.PacketGenerationRate,
		Src:  xrand.NewSource(uint64(seed + 7)),
	}
	return n
}

// Start schedules every periodic process of the node.
func (n *Drone) Start() {
	n.Router.Start()
	n.sched.Schedule(n.nextTrafficGap(), n.generate)
	n.sched.Schedule(feedInterval, n.feed)
	n.sched.Schedule(receiveInterval, n.receive)
	n.sched.Schedule(n.rng.Float64()*helloJitterMax, n.sendHello)
	n.sched.Schedule(n.cfg.HelloInterval/2, n.expireNeighbors)
	n.sched.Schedule(mobilityInterval, n.move)
	n.sched.Schedule(energyInterval, n.monitorEnergy)
}

func (n *Drone) Position() mesh.Vector3 { return n.Mobility.Position() }
func (n *Drone) ChannelID() int         { return n.channelID }
func (n *Drone) QueueLen() int          { return len(n.queue) }
func (n *Drone) Neighbors() int         { return len(n.neighbors) }

// Sleeping implements the mac and routing host surfaces.
func (n *Drone) Sleeping() bool { return n.sleeping }

// Penalize forwards an unacknowledged transmission to the routing layer.
func (n *Drone) Penalize(p *packet.Packet) { n.Router.Penalize(p) }

// Requeue retries the head-of-line packet without releasing its slot.
func (n *Drone) Requeue(p *packet.Packet) {
	p.Attempts[n.ID]++
	n.MAC.Send(p)
}

// Done releases the head-of-line slot once the MAC is finished with a
// packet, successfully or not.
func (n *Drone) Done(*packet.Packet) { n.inFlight = false }

// EnqueueTx implements the routing host surface: packets enter the tail of
// the transmit queue.
func (n *Drone) EnqueueTx(p *packet.Packet) bool {
	if len(n.queue) >= n.cfg.MaxQueueSize {
		return false
	}
	p.WaitingStartTime = n.sched.Now()
	n.queue = append(n.queue, p)
	return true
}

func (n *Drone) nextTrafficGap() float64 { return n.trafficGap.Rand() * 1e6 }

// generate creates one data packet for a uniformly chosen other node and
// schedules the next arrival of the Poisson process.
func (n *Drone) generate() {
	defer n.sched.Schedule(n.nextTrafficGap(), n.generate)
	if n.sleeping {
		return
	}
	dst := n.rng.Intn(n.cfg.NumberOfDrones - 1)
	if dst >= n.ID {
		dst++
	}
	payload := n.cfg.AveragePayloadLength
	if n.cfg.VariablePayloadLength {
		payload += n.rng.Intn(2*n.cfg.MaximumPayloadVariation+1) - n.cfg.MaximumPayloadVariation
	}
	p := packet.New(n.ids.Next(packet.KindData), packet.KindData,
		n.cfg.DataPacketLength(payload), n.sched.Now(), n.cfg.PacketLifetime,
		n.channelID, packet.Unicast, n.cfg.NumberOfDrones)
	p.Data = &packet.DataFields{SrcID: n.ID, DstID: dst}

	n.stats.AddGenerated()
	n.bus.Publish(eventbus.Event{
		Type:      eventbus.EventPacketGenerated,
		NodeID:    n.ID,
		OtherID:   dst,
		PacketID:  p.ID,
		Timestamp: n.sched.Now(),
	})
	n.logger.Debugf("generated data %d for %d", p.ID, dst)
	if !n.EnqueueTx(p) {
		n.stats.AddQueueDrop()
	}
}

// feed hands the queue head to the MAC whenever the head-of-line slot is
// free and no transmission is waiting on its ACK.
func (n *Drone) feed() {
	defer n.sched.Schedule(feedInterval, n.feed)
	if n.sleeping || n.inFlight || n.MAC.AckPending() || len(n.queue) == 0 {
		return
	}
	p := n.queue[0]
	n.queue = n.queue[1:]

	if p.Kind == packet.KindData {
		if p.Expired(n.sched.Now()) {
			n.stats.AddExpiredDrop()
			n.dropped(p, "expired")
			return
		}
		// locally generated packets are bound here; relayed ones were
		// bound by the router before queueing
		if p.NextHopID < 0 && !n.Router.BindNextHop(p) {
			return // parked for route discovery, or dropped
		}
	}

	n.inFlight = true
	p.Attempts[n.ID]++
	n.MAC.Send(p)
}

// receive is the receiver frontend: every poll it purges stale inbox
// entries, evaluates transmissions that completed since the last poll and
// decodes at most the strongest one.
func (n *Drone) receive() {
	defer n.sched.Schedule(receiveInterval, n.receive)
	if n.sleeping {
		return
	}
	now := n.sched.Now()
	n.ch.PurgeInbox(n.ID, now)
	done := n.ch.CompleteUnprocessed(n.ID, now)
	if len(done) == 0 {
		return
	}

	mains := make([]channel.Transmitter, len(done))
	spans := make([]channel.Span, len(done))
	for i, e := range done {
		mains[i] = channel.Transmitter{NodeID: e.TransmitterID, ChannelID: e.ChannelID}
		spans[i] = n.ch.SpanOf(e)
	}
	all := n.ch.OverlappingTransmitters(spans)
	sinrs := n.calc.SINRList(n.ID, mains, all, n.rng)

	best := 0
	for i := 1; i < len(sinrs); i++ {
		if sinrs[i] > sinrs[best] {
			best = i
		}
	}
	for i, e := range done {
		if i == best && sinrs[best] >= n.cfg.SNRThreshold {
			n.Battery.ConsumeReceive(n.cfg.TransmissionTime(e.Packet.LengthBits))
			// a frame that already burned its hop budget dies at the
			// receiver, whoever that is
			if e.Packet.TTL() >= n.cfg.MaxTTL {
				n.stats.AddTTLDrop()
				n.dropped(e.Packet, "ttl")
				continue
			}
			n.handlePacket(e)
			continue
		}
		if len(all) > 1 {
			n.stats.AddCollision()
			n.bus.Publish(eventbus.Event{
				Type:      eventbus.EventCollision,
				NodeID:    n.ID,
				OtherID:   e.TransmitterID,
				PacketID:  e.Packet.ID,
				Timestamp: now,
			})
		}
	}
}

func (n *Drone) handlePacket(e *channel.InboxEntry) {
	p := e.Packet
	switch p.Kind {
	case packet.KindHello:
		n.neighbors[p.Hello.SrcID] = n.sched.Now()
		n.Router.ObserveNeighbor(p.Hello.SrcID)
	case packet.KindAck:
		if p.Ack.DstID == n.ID {
			n.MAC.OnAck(p.Ack.AckedID)
		}
	case packet.KindData:
		n.Router.HandleData(p, e.TransmitterID)
	case packet.KindRreq, packet.KindRrep, packet.KindRerr:
		n.Router.Dispatch(p, e.TransmitterID)
	}
}

func (n *Drone) sendHello() {
	defer n.sched.Schedule(n.cfg.HelloInterval, n.sendHello)
	if n.sleeping {
		return
	}
	p := packet.New(n.ids.Next(packet.KindHello), packet.KindHello,
		n.cfg.HelloPacketLength, n.sched.Now(), n.cfg.PacketLifetime,
		n.channelID, packet.Broadcast, n.cfg.NumberOfDrones)
	p.Hello = &packet.HelloFields{SrcID: n.ID}
	if !n.EnqueueTx(p) {
		n.stats.AddQueueDrop()
	}
}

func (n *Drone) expireNeighbors() {
	defer n.sched.Schedule(n.cfg.HelloInterval/2, n.expireNeighbors)
	now := n.sched.Now()
	for id, last := range n.neighbors {
		if now-last > n.cfg.NeighborTimeout {
			delete(n.neighbors, id)
		}
	}
}

func (n *Drone) move() {
	defer n.sched.Schedule(mobilityInterval, n.move)
	if n.sleeping {
		return
	}
	n.Mobility.Step(mobilityInterval)
	pos := n.Mobility.Position()
	n.bus.Publish(eventbus.Event{
		Type:      eventbus.EventNodeMoved,
		NodeID:    n.ID,
		X:         pos.X,
		Y:         pos.Y,
		Z:         pos.Z,
		Timestamp: n.sched.Now(),
	})
}

func (n *Drone) monitorEnergy() {
	defer n.sched.Schedule(energyInterval, n.monitorEnergy)
	n.Battery.Monitor(energyInterval)
}

func (n *Drone) onSleep() {
	n.sleeping = true
	n.logger.Infof("battery below threshold at %.0fus, node goes dark", n.sched.Now())
	n.bus.Publish(eventbus.Event{
		Type:      eventbus.EventNodeSlept,
		NodeID:    n.ID,
		Timestamp: n.sched.Now(),
	})
}

func (n *Drone) dropped(p *packet.Packet, reason string) {
	n.bus.Publish(eventbus.Event{
		Type:      eventbus.EventPacketDropped,
		NodeID:    n.ID,
		PacketID:  p.ID,
		Reason:    reason,
		Timestamp: n.sched.Now(),
	})
}
