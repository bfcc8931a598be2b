// Package routing implements AODV on-demand route discovery: reactive RREQ
// floods, RREP replies along the reverse path, RERR invalidation when a next
// hop stops answering, and a soft-state table whose entries expire unless
// traffic keeps them alive.
package routing

import (
	"sort"

	"github.com/apex/log"

	"github.com/tribui1912/UavNetSim/internal/channel"
	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/energy"
	"github.com/tribui1912/UavNetSim/internal/event"
	"github.com/tribui1912/UavNetSim/internal/eventbus"
	"github.com/tribui1912/UavNetSim/internal/metrics"
	"github.com/tribui1912/UavNetSim/internal/packet"
)

// routing-table purge cadence, µs
const purgeInterval = 1e6

// Host is the node-side surface the router calls back into.
type Host interface {
	// EnqueueTx appends a packet to the node's transmit queue, reporting
	// false when the queue is full.
	EnqueueTx(p *packet.Packet) bool
	Sleeping() bool
	// ChannelID is the node's assigned sub-channel, stamped on control
	// packets this router originates.
	ChannelID() int
}

// Route is one table row. A row is usable until Expiry; use refreshes it.
type Route struct {
	NextHop  int
	HopCount int
	SeqNum   int
	Expiry   float64
}

type seenKey struct {
	origin      int
	broadcastID int
}

type AODV struct {
	cfg     *config.Config
	sched   *event.Scheduler
	ch      *channel.Channel
	stats   *metrics.Collector
	bus     *eventbus.Bus
	battery *energy.Model
	ids     *packet.IDGen
	host    Host
	nodeID  int
	logger  *log.Entry

	table       map[int]*Route
	seen        map[seenKey]float64 // rreq dedup cache, value = insertion time
	waiting     map[int][]*packet.Packet
	discovering map[int]float64 // dest -> discovery deadline
	seqNum      int
	broadcastID int
}

func NewAODV(cfg *config.Config, sched *event.Scheduler, ch *channel.Channel,
	stats *metrics.Collector, bus *eventbus.Bus, battery *energy.Model,
	ids *packet.IDGen, host Host, nodeID int) *AODV {
	return &AODV{
		cfg:         cfg,
		sched:       sched,
		ch:          ch,
		stats:       stats,
		bus:         bus,
		battery:     battery,
		ids:         ids,
		host:        host,
		nodeID:      nodeID,
		logger:      log.WithField("node", nodeID),
		table:       make(map[int]*Route),
		seen:        make(map[seenKey]float64),
		waiting:     make(map[int][]*packet.Packet),
		discovering: make(map[int]float64),
	}
}

// Start kicks off the periodic purge of expired routes and stale
// discoveries.
func (r *AODV) Start() {
	r.sched.Schedule(purgeInterval, r.purge)
}

func (r *AODV) purge() {
	now := r.sched.Now()
	for dest, route := range r.table {
		if now >= route.Expiry {
			r.removeRoute(dest, "expired")
		}
	}
	for dest, deadline := range r.discovering {
		if now >= deadline {
			delete(r.discovering, dest)
			r.dropStale(dest)
		}
	}
	for key, inserted := range r.seen {
		if now-inserted >= r.cfg.PathDiscoveryTime() {
			delete(r.seen, key)
		}
	}
	r.sched.Schedule(purgeInterval, r.purge)
}

// dropStale discards buffered packets that outlived their deadline while a
// discovery went unanswered.
func (r *AODV) dropStale(dest int) {
	now := r.sched.Now()
	kept := r.waiting[dest][:0]
	for _, p := range r.waiting[dest] {
		if p.Expired(now) {
			r.stats.AddExpiredDrop()
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		delete(r.waiting, dest)
		return
	}
	r.waiting[dest] = kept
}

// HasRoute reports whether a live route to dest exists.
func (r *AODV) HasRoute(dest int) bool {
	route, ok := r.table[dest]
	return ok && r.sched.Now() < route.Expiry
}

// RouteCount is exposed for state snapshots.
func (r *AODV) RouteCount() int { return len(r.table) }

// BindNextHop resolves the next hop for an outbound data packet. If no live
// route exists the packet is parked and a route discovery starts; the caller
// must not transmit it.
func (r *AODV) BindNextHop(p *packet.Packet) bool {
	dest := p.Data.DstID
	if route, ok := r.table[dest]; ok && r.sched.Now() < route.Expiry {
		p.NextHopID = route.NextHop
		route.Expiry = r.sched.Now() + r.cfg.ActiveRouteTimeout
		return true
	}
	if len(r.waiting[dest]) >= r.cfg.MaxQueueSize {
		r.stats.AddNoRouteDrop()
		return false
	}
	r.waiting[dest] = append(r.waiting[dest], p)
	if deadline, busy := r.discovering[dest]; !busy || r.sched.Now() >= deadline {
		r.sendRreq(dest)
	}
	return false
}

func (r *AODV) sendRreq(dest int) {
	r.seqNum++
	r.broadcastID++
	rq := packet.New(r.ids.Next(packet.KindRreq), packet.KindRreq, r.cfg.HelloPacketLength,
		r.sched.Now(), r.cfg.PacketLifetime, r.host.ChannelID(), packet.Broadcast, r.cfg.NumberOfDrones)
	rq.Rreq = &packet.RreqFields{
		OriginID:    r.nodeID,
		BroadcastID: r.broadcastID,
		DestID:      dest,
		DestSeq:     r.destSeqHint(dest),
		OriginSeq:   r.seqNum,
		HopCount:    0,
	}
	r.seen[seenKey{r.nodeID, r.broadcastID}] = r.sched.Now()
	r.discovering[dest] = r.sched.Now() + r.cfg.PathDiscoveryTime()
	r.logger.Debugf("route discovery for %d, rreq %d", dest, rq.ID)
	r.enqueue(rq)
}

func (r *AODV) destSeqHint(dest int) int {
	if route, ok := r.table[dest]; ok {
		return route.SeqNum
	}
	return 0
}

// ObserveNeighbor registers proof of life of a direct neighbor (a decoded
// hello) as a one-hop route.
func (r *AODV) ObserveNeighbor(id int) {
	r.updateRoute(id, id, 1, 0)
}

// Dispatch handles a decoded control packet. txID is the hop-level
// transmitter the packet arrived from.
func (r *AODV) Dispatch(p *packet.Packet, txID int) {
	switch p.Kind {
	case packet.KindRreq:
		r.handleRreq(p, txID)
	case packet.KindRrep:
		r.handleRrep(p, txID)
	case packet.KindRerr:
		r.handleRerr(p, txID)
	}
}

func (r *AODV) handleRreq(p *packet.Packet, txID int) {
	rq := p.Rreq
	key := seenKey{rq.OriginID, rq.BroadcastID}
	if inserted, dup := r.seen[key]; dup && r.sched.Now()-inserted < r.cfg.PathDiscoveryTime() {
		return
	}
	r.seen[key] = r.sched.Now()

	// the previous hop is one hop away, the originator rq.HopCount+1
	r.updateRoute(txID, txID, 1, 0)
	r.updateRoute(rq.OriginID, txID, rq.HopCount+1, rq.OriginSeq)

	if rq.DestID == r.nodeID {
		if rq.DestSeq > r.seqNum {
			r.seqNum = rq.DestSeq
		}
		r.sendRrep(rq.OriginID, r.nodeID, r.seqNum, 0, txID)
		return
	}
	if route, ok := r.table[rq.DestID]; ok &&
		r.sched.Now() < route.Expiry && route.SeqNum >= rq.DestSeq {
		// intermediate node with a route at least as fresh
		r.sendRrep(rq.OriginID, rq.DestID, route.SeqNum, route.HopCount, txID)
		return
	}
	if p.TTL() >= r.cfg.MaxTTL {
		r.stats.AddTTLDrop()
		return
	}
	rq.HopCount++
	r.enqueue(p)
}

func (r *AODV) sendRrep(originator, dest, destSeq, hopCount, nextHop int) {
	rp := packet.New(r.ids.Next(packet.KindRrep), packet.KindRrep, r.cfg.HelloPacketLength,
		r.sched.Now(), r.cfg.PacketLifetime, r.host.ChannelID(), packet.Unicast, r.cfg.NumberOfDrones)
	rp.Rrep = &packet.RrepFields{
		OriginatorID: originator,
		DestID:       dest,
		DestSeq:      destSeq,
		HopCount:     hopCount,
		Lifetime:     r.cfg.ActiveRouteTimeout,
	}
	rp.NextHopID = nextHop
	r.enqueue(rp)
}

func (r *AODV) handleRrep(p *packet.Packet, txID int) {
	rp := p.Rrep
	r.updateRoute(txID, txID, 1, 0)
	r.updateRoute(rp.DestID, txID, rp.HopCount+1, rp.DestSeq)

	if rp.OriginatorID == r.nodeID {
		r.logger.Debugf("route to %d established via %d, %d hops",
			rp.DestID, txID, rp.HopCount+1)
		delete(r.discovering, rp.DestID)
		r.flushWaiting(rp.DestID)
		return
	}
	route, ok := r.table[rp.OriginatorID]
	if !ok || r.sched.Now() >= route.Expiry {
		return // reverse path gone, the reply dies here
	}
	rp.HopCount++
	p.NextHopID = route.NextHop
	r.enqueue(p)
}

// flushWaiting releases packets parked for dest now that a route exists.
func (r *AODV) flushWaiting(dest int) {
	route, ok := r.table[dest]
	if !ok {
		return
	}
	parked := r.waiting[dest]
	delete(r.waiting, dest)
	for _, p := range parked {
		if p.Expired(r.sched.Now()) {
			r.stats.AddExpiredDrop()
			continue
		}
		p.NextHopID = route.NextHop
		r.enqueue(p)
	}
}

func (r *AODV) handleRerr(p *packet.Packet, txID int) {
	var invalidated []packet.Unreachable
	for _, u := range p.Rerr.Unreachable {
		route, ok := r.table[u.DestID]
		if !ok || route.NextHop != txID {
			continue
		}
		if u.Seq < route.SeqNum {
			continue // our route is fresher than the reported loss
		}
		r.removeRoute(u.DestID, "rerr")
		invalidated = append(invalidated, u)
	}
	if len(invalidated) > 0 {
		r.sendRerr(invalidated)
	}
}

// Penalize reacts to an unacknowledged unicast: every route through the dead
// next hop is invalidated and the loss is advertised.
func (r *AODV) Penalize(p *packet.Packet) {
	deadHop := p.NextHopID
	var lost []packet.Unreachable
	for dest, route := range r.table {
		if route.NextHop != deadHop {
			continue
		}
		lost = append(lost, packet.Unreachable{DestID: dest, Seq: route.SeqNum})
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i].DestID < lost[j].DestID })
	for _, u := range lost {
		r.removeRoute(u.DestID, "unreachable")
	}
	if len(lost) > 0 {
		r.sendRerr(lost)
	}
}

func (r *AODV) sendRerr(lost []packet.Unreachable) {
	re := packet.New(r.ids.Next(packet.KindRerr), packet.KindRerr, r.cfg.HelloPacketLength,
		r.sched.Now(), r.cfg.PacketLifetime, r.host.ChannelID(), packet.Broadcast, r.cfg.NumberOfDrones)
	re.Rerr = &packet.RerrFields{ReporterID: r.nodeID, Unreachable: lost}
	r.enqueue(re)
}

// HandleData processes a data packet that survived the PHY. If this node is
// the final destination it acknowledges and records delivery; if it can relay
// it acknowledges and enqueues. A node that can do neither stays silent, so
// the previous hop's ACK timeout kicks in and triggers its recovery path.
func (r *AODV) HandleData(p *packet.Packet, txID int) {
	r.updateRoute(txID, txID, 1, 0)

	if p.Data.DstID == r.nodeID {
		r.sendAck(p, txID)
		if r.stats.Delivered(p, r.sched.Now()) {
			r.bus.Publish(eventbus.Event{
				Type:      eventbus.EventPacketDelivered,
				NodeID:    r.nodeID,
				OtherID:   p.Data.SrcID,
				PacketID:  p.ID,
				Timestamp: r.sched.Now(),
			})
		}
		return
	}
	if p.Expired(r.sched.Now()) {
		r.stats.AddExpiredDrop()
		return
	}
	if p.TTL() >= r.cfg.MaxTTL {
		r.stats.AddTTLDrop()
		return
	}
	route, ok := r.table[p.Data.DstID]
	if !ok || r.sched.Now() >= route.Expiry {
		r.stats.AddNoRouteDrop()
		return
	}
	p.NextHopID = route.NextHop
	route.Expiry = r.sched.Now() + r.cfg.ActiveRouteTimeout
	r.sendAck(p, txID)
	r.enqueue(p)
}

// sendAck answers the hop-level transmitter one SIFS after reception. The
// ACK bypasses MAC contention: the data sender is still holding the medium
// open for exactly this reply.
func (r *AODV) sendAck(data *packet.Packet, txID int) {
	ack := packet.New(r.ids.Next(packet.KindAck), packet.KindAck, r.cfg.AckPacketLength,
		r.sched.Now(), r.cfg.PacketLifetime, data.ChannelID, packet.Unicast, r.cfg.NumberOfDrones)
	ack.Ack = &packet.AckFields{SrcID: r.nodeID, DstID: txID, AckedID: data.ID}
	ack.NextHopID = txID

	ackTime := r.cfg.TransmissionTime(ack.LengthBits)
	r.sched.Schedule(r.cfg.SIFSDuration, func() {
		if r.host.Sleeping() {
			return
		}
		ack.IncreaseTTL()
		r.ch.Occupy(r.nodeID)
		r.battery.ConsumeTransmit(ackTime)
		r.stats.AddControlSent()
		r.ch.Unicast(ack, r.nodeID, txID, r.sched.Now())
		r.sched.Schedule(ackTime, func() { r.ch.Release(r.nodeID) })
	})
}

// updateRoute applies the freshness rule: a row is replaced only by a
// strictly newer sequence number, or the same sequence number over fewer
// hops. Using or refreshing a row pushes its expiry out.
func (r *AODV) updateRoute(dest, nextHop, hopCount, seqNum int) {
	if dest == r.nodeID {
		return
	}
	now := r.sched.Now()
	cur, ok := r.table[dest]
	if ok && now < cur.Expiry {
		if seqNum < cur.SeqNum {
			return
		}
		if seqNum == cur.SeqNum && hopCount >= cur.HopCount {
			cur.Expiry = now + r.cfg.ActiveRouteTimeout
			return
		}
	}
	r.table[dest] = &Route{
		NextHop:  nextHop,
		HopCount: hopCount,
		SeqNum:   seqNum,
		Expiry:   now + r.cfg.ActiveRouteTimeout,
	}
	r.bus.Publish(eventbus.Event{
		Type:   eventbus.EventRouteAdded,
		NodeID: r.nodeID,
		Route: &eventbus.RouteEntry{
			Destination: dest,
			NextHop:     nextHop,
			HopCount:    hopCount,
			SeqNum:      seqNum,
		},
		Timestamp: now,
	})
}

func (r *AODV) removeRoute(dest int, reason string) {
	route, ok := r.table[dest]
	if !ok {
		return
	}
	delete(r.table, dest)
	r.bus.Publish(eventbus.Event{
		Type:   eventbus.EventRouteRemoved,
		NodeID: r.nodeID,
		Route: &eventbus.RouteEntry{
			Destination: dest,
			NextHop:     route.NextHop,
			HopCount:    route.HopCount,
			SeqNum:      route.SeqNum,
		},
		Reason:    reason,
		Timestamp: r.sched.Now(),
	})
}

func (r *AODV) enqueue(p *packet.Packet) {
	if !r.host.EnqueueTx(p) {
		r.stats.AddQueueDrop()
	}
}
