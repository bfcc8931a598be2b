// Package mac implements CSMA/CA without RTS/CTS. One transmission is in
// flight per node at a time (head of line): the node hands a packet to Send,
// the MAC contends for the medium, transmits, and for unicast data waits for
// the ACK, retrying with binary exponential backoff until the attempt limit.
package mac

import (
	"math/rand"

	"github.com/apex/log"

	"github.com/tribui1912/UavNetSim/internal/channel"
	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/energy"
	"github.com/tribui1912/UavNetSim/internal/event"
	"github.com/tribui1912/UavNetSim/internal/metrics"
	"github.com/tribui1912/UavNetSim/internal/packet"
)

// carrier sense poll granularity during the DIFS+backoff countdown, µs
const listenInterval = 1

// Host is the node-side surface the MAC calls back into.
type Host interface {
	// Sleeping nodes abandon all MAC activity.
	Sleeping() bool
	// Penalize tells routing a unicast to the packet's next hop went
	// unacknowledged.
	Penalize(p *packet.Packet)
	// Requeue re-enters the packet for another attempt. The head-of-line
	// slot is still held.
	Requeue(p *packet.Packet)
	// Done releases the head-of-line slot: the packet was delivered to
	// the medium (and acknowledged, if it needed to be) or dropped.
	Done(p *packet.Packet)
}

type CSMA struct {
	cfg     *config.Config
	sched   *event.Scheduler
	ch      *channel.Channel
	rng     *rand.Rand
	stats   *metrics.Collector
	battery *energy.Model
	host    Host
	nodeID  int
	logger  *log.Entry

	pending map[int]*ackWait // packet id -> outstanding ACK wait
}

type ackWait struct {
	pkt   *packet.Packet
	timer *event.Handle
}

// tx is one contention round: remaining backoff is preserved across medium
// interruptions, the full DIFS is not.
type tx struct {
	pkt     *packet.Packet
	backoff float64 // remaining backoff, µs
	toWait  float64 // DIFS + backoff still to count down, µs
	start   float64 // when the current countdown began
	done    *event.Handle
	listen  *event.Handle
}

func NewCSMA(cfg *config.Config, sched *event.Scheduler, ch *channel.Channel,
	rng *rand.Rand, stats *metrics.Collector, battery *energy.Model,
	host Host, nodeID int) *CSMA {
	return &CSMA{
		cfg:     cfg,
		sched:   sched,
		ch:      ch,
		rng:     rng,
		stats:   stats,
		battery: battery,
		host:    host,
		nodeID:  nodeID,
		logger:  log.WithField("node", nodeID),
		pending: make(map[int]*ackWait),
	}
}

// AckPending reports whether a transmitted packet is still waiting for its
// ACK. The node's feeder stalls while this holds.
func (m *CSMA) AckPending() bool { return len(m.pending) > 0 }

// Send starts a contention round for the head-of-line packet. The attempt
// counter must already be incremented by the caller; it selects the
// contention window.
func (m *CSMA) Send(p *packet.Packet) {
	if m.host.Sleeping() {
		return
	}
	// MAC delay is measured from the start of the first contention round,
	// so the initial DIFS+backoff wait counts too
	if p.FirstAttemptTime < 0 {
		p.FirstAttemptTime = m.sched.Now()
	}
	attempt := p.Attempts[m.nodeID]
	if attempt < 1 {
		attempt = 1
	}
	cw := (m.cfg.CWMin+1)<<(attempt-1) - 1
	backoff := float64(m.rng.Intn(cw)) * m.cfg.SlotDuration
	t := &tx{pkt: p, backoff: backoff, toWait: m.cfg.DIFSDuration + backoff}
	m.logger.Debugf("mac contends for %s %d, attempt %d, backoff %.0fus",
		p.Kind, p.ID, attempt, backoff)
	m.waitIdle(t)
}

// waitIdle polls once per slot until the medium looks idle, then starts the
// DIFS+backoff countdown.
func (m *CSMA) waitIdle(t *tx) {
	if m.host.Sleeping() {
		return
	}
	if !m.ch.SenseIdle(m.nodeID) {
		m.sched.Schedule(m.cfg.SlotDuration, func() { m.waitIdle(t) })
		return
	}
	m.startCountdown(t)
}

func (m *CSMA) startCountdown(t *tx) {
	t.start = m.sched.Now()
	t.done = m.sched.Schedule(t.toWait, func() {
		if t.listen != nil {
			t.listen.Cancel()
		}
		m.transmit(t)
	})

	var poll func()
	poll = func() {
		if m.ch.SenseIdle(m.nodeID) {
			t.listen = m.sched.Schedule(listenInterval, poll)
			return
		}
		// medium grabbed under us: inside DIFS the whole DIFS restarts,
		// inside backoff only the burned slots are kept
		t.done.Cancel()
		elapsed := m.sched.Now() - t.start
		if elapsed >= m.cfg.DIFSDuration {
			t.backoff -= elapsed - m.cfg.DIFSDuration
			if t.backoff < 0 {
				t.backoff = 0
			}
		}
		t.toWait = m.cfg.DIFSDuration + t.backoff
		m.waitIdle(t)
	}
	t.listen = m.sched.Schedule(listenInterval, poll)
}

func (m *CSMA) transmit(t *tx) {
	if m.host.Sleeping() {
		return
	}
	p := t.pkt
	now := m.sched.Now()
	if p.Kind == packet.KindData && p.Expired(now) {
		m.stats.AddExpiredDrop()
		m.host.Done(p)
		return
	}

	txTime := m.cfg.TransmissionTime(p.LengthBits)
	p.TransmittingStartTime = now
	p.IncreaseTTL()

	m.ch.Occupy(m.nodeID)
	m.battery.ConsumeTransmit(txTime)
	if p.Kind.Control() {
		m.stats.AddControlSent()
	}

	switch p.Mode {
	case packet.Broadcast:
		m.ch.Broadcast(p, m.nodeID, now)
	case packet.Unicast:
		m.ch.Unicast(p, m.nodeID, p.NextHopID, now)
	}
	m.logger.Debugf("tx %s %d starts at %.0fus, ttl %d", p.Kind, p.ID, now, p.TTL())

	if p.Kind == packet.KindData && p.Mode == packet.Unicast {
		// hold the medium through SIFS and the ACK slot so the reply is
		// not trampled by our own next contention round
		ackSlot := m.cfg.SIFSDuration + m.cfg.TransmissionTime(m.cfg.AckPacketLength)
		m.sched.Schedule(txTime+ackSlot, func() { m.ch.Release(m.nodeID) })

		w := &ackWait{pkt: p}
		w.timer = m.sched.Schedule(txTime+m.cfg.AckTimeout, func() { m.ackTimeout(p) })
		m.pending[p.ID] = w
		return
	}

	m.sched.Schedule(txTime, func() {
		m.ch.Release(m.nodeID)
		m.host.Done(p)
	})
}

func (m *CSMA) ackTimeout(p *packet.Packet) {
	if _, ok := m.pending[p.ID]; !ok {
		return
	}
	delete(m.pending, p.ID)
	m.host.Penalize(p)
	if p.Attempts[m.nodeID] < m.cfg.MaxRetransmissionAttempt {
		m.logger.Debugf("no ack for %d, attempt %d, requeueing",
			p.ID, p.Attempts[m.nodeID])
		m.host.Requeue(p)
		return
	}
	m.logger.Debugf("packet %d dropped after %d attempts", p.ID, p.Attempts[m.nodeID])
	m.stats.AddMACDelay(m.sched.Now() - p.FirstAttemptTime)
	m.host.Done(p)
}

// OnAck resolves the outstanding wait for the acknowledged packet. Called by
// the node when an ACK addressed to it arrives.
func (m *CSMA) OnAck(ackedID int) {
	w, ok := m.pending[ackedID]
	if !ok {
		return
	}
	delete(m.pending, ackedID)
	w.timer.Cancel()
	m.stats.AddMACDelay(m.sched.Now() - w.pkt.FirstAttemptTime)
	m.host.Done(w.pkt)
}
