// Package channel models the shared radio medium: per-receiver inboxes that
// record when each transmission started, and the carrier-sense state the MAC
// layer polls. It performs no signal math itself; deciding whether a
// complete transmission is decodable is the phy package's job.
package channel

import (
	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/mesh"
	"github.com/tribui1912/UavNetSim/internal/packet"
)

// InboxEntry is one transmission as seen by one receiver. It is created the
// moment the transmitter starts sending; the receiver decides later (at a
// poll) whether the packet completed and whether it was decodable.
type InboxEntry struct {
	Packet        *packet.Packet
	InsertionTime float64
	TransmitterID int
	Processed     bool
	ChannelID     int
}

// Span is the on-air interval of a transmission, [start, end] in µs.
type Span struct {
	Start float64
	End   float64
}

func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// PositionFunc resolves a node id to its current position. Positions are
// owned by the mobility collaborator; the channel only reads them.
type PositionFunc func(id int) mesh.Vector3

// Transmitter identifies one concurrent sender and the sub-channel it used.
type Transmitter struct {
	NodeID    int
	ChannelID int
}

// Channel is the single shared medium. Everything runs on the simulation's
// one logical timeline, so no locking is needed, only ordering discipline.
type Channel struct {
	cfg      *config.Config
	pos      PositionFunc
	inboxes  [][]*InboxEntry
	occupied []bool // node currently holds the medium (transmit + ACK window)
}

func New(cfg *config.Config) *Channel {
	return &Channel{
		cfg:      cfg,
		inboxes:  make([][]*InboxEntry, cfg.NumberOfDrones),
		occupied: make([]bool, cfg.NumberOfDrones),
	}
}

// SetPositionFunc wires the mobility collaborator in after nodes exist.
func (c *Channel) SetPositionFunc(f PositionFunc) { c.pos = f }

// Broadcast starts a transmission visible to every node: an inbox entry is
// inserted for each receiver at the current instant.
func (c *Channel) Broadcast(p *packet.Packet, senderID int, now float64) {
	for id := range c.inboxes {
		if id == senderID {
			continue
		}
		c.insert(id, p, senderID, now)
	}
}

// Unicast starts a transmission addressed to dstID. Only the addressee gets
// an inbox entry, but the transmission still interferes with everyone: the
// interference scan walks all inboxes, so concurrent receivers see it.
func (c *Channel) Unicast(p *packet.Packet, senderID, dstID int, now float64) {
	if dstID < 0 || dstID >= len(c.inboxes) || dstID == senderID {
		return
	}
	c.insert(dstID, p, senderID, now)
}

func (c *Channel) insert(receiverID int, p *packet.Packet, senderID int, now float64) {
	c.inboxes[receiverID] = append(c.inboxes[receiverID], &InboxEntry{
		Packet:        p,
		InsertionTime: now,
		TransmitterID: senderID,
		ChannelID:     p.ChannelID,
	})
}

// Occupy marks a node as holding the medium; Release clears it. A unicast
// data transmission keeps the medium through SIFS and the ACK slot so the
// reply cannot be trampled by the holder's own next contention round.
func (c *Channel) Occupy(id int)  { c.occupied[id] = true }
func (c *Channel) Release(id int) { c.occupied[id] = false }

// SenseIdle reports whether the medium looks idle from the sender's point of
// view: no other node holding the medium within sensing range.
func (c *Channel) SenseIdle(senderID int) bool {
	from := c.pos(senderID)
	for id, busy := range c.occupied {
		if id == senderID || !busy {
			continue
		}
		if from.DistanceTo(c.pos(id)) <= c.cfg.SensingRange {
			return false
		}
	}
	return true
}

// CompleteUnprocessed returns (and marks processed) every inbox entry of the
// receiver whose transmission has fully arrived by now.
func (c *Channel) CompleteUnprocessed(receiverID int, now float64) []*InboxEntry {
	var done []*InboxEntry
	for _, entry := range c.inboxes[receiverID] {
		if entry.Processed {
			continue
		}
		if now >= entry.InsertionTime+c.cfg.TransmissionTime(entry.Packet.LengthBits) {
			entry.Processed = true
			done = append(done, entry)
		}
	}
	return done
}

// SpanOf is the on-air interval of an entry.
func (c *Channel) SpanOf(e *InboxEntry) Span {
	return Span{Start: e.InsertionTime, End: e.InsertionTime + c.cfg.TransmissionTime(e.Packet.LengthBits)}
}

// OverlappingTransmitters scans every node's inbox for transmissions whose
// air time intersects any of the given spans. The result is deduplicated
// (one entry per transmitter/sub-channel pair) in deterministic order.
func (c *Channel) OverlappingTransmitters(spans []Span) []Transmitter {
	var out []Transmitter
	seen := make(map[Transmitter]struct{})
	for _, inbox := range c.inboxes {
		for _, entry := range inbox {
			interval := c.SpanOf(entry)
			for _, s := range spans {
				if interval.Overlaps(s) {
					t := Transmitter{NodeID: entry.TransmitterID, ChannelID: entry.ChannelID}
					if _, dup := seen[t]; !dup {
						seen[t] = struct{}{}
						out = append(out, t)
					}
					break
				}
			}
		}
	}
	return out
}

// PurgeInbox drops processed entries so old they can no longer overlap any
// reception window still pending:
//
//	                                  ↓ now
//	                     |==========|←- current incoming packet
//	              |==========|←- processed, may still interfere, keep
//	|==========|←- processed, out of reach, delete
func (c *Channel) PurgeInbox(receiverID int, now float64) {
	horizon := 2 * c.cfg.MaxTransmissionTime()
	inbox := c.inboxes[receiverID]
	kept := inbox[:0]
	for _, entry := range inbox {
		if entry.Processed && entry.InsertionTime+horizon < now {
			continue
		}
		kept = append(kept, entry)
	}
	// release dropped tail for GC
	for i := len(kept); i < len(inbox); i++ {
		inbox[i] = nil
	}
	c.inboxes[receiverID] = kept
}

// InboxLen is exposed for tests and state snapshots.
func (c *Channel) InboxLen(receiverID int) int { return len(c.inboxes[receiverID]) }
