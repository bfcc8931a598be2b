// Package packet defines the closed set of packet kinds exchanged in the
// network. A Packet is a tagged union: the Kind field selects which variant
// struct is populated, and every place where the kind determines behavior
// (the MAC transmit path, routing reception) switches on it exhaustively.
package packet

import "fmt"

// Kind tags the packet variant.
type Kind uint8

const (
	KindData Kind = iota
	KindAck
	KindHello
	KindRreq
	KindRrep
	KindRerr
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindAck:
		return "ACK"
	case KindHello:
		return "HELLO"
	case KindRreq:
		return "RREQ"
	case KindRrep:
		return "RREP"
	case KindRerr:
		return "RERR"
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

// Control reports whether the kind is protocol overhead rather than payload.
func (k Kind) Control() bool { return k != KindData }

// Mode is the transmission mode of a packet.
type Mode uint8

const (
	Unicast Mode = iota
	Broadcast
)

// Variant payloads. Exactly one of these is non-nil on a Packet, matching
// its Kind.

type DataFields struct {
	SrcID int
	DstID int
}

type AckFields struct {
	SrcID   int
	DstID   int
	AckedID int // packet id being acknowledged
}

type HelloFields struct {
	SrcID int
}

type RreqFields struct {
	OriginID    int
	BroadcastID int
	DestID      int
	DestSeq     int
	OriginSeq   int
	HopCount    int
}

type RrepFields struct {
	OriginatorID int // node that issued the RREQ
	DestID       int // destination the route leads to
	DestSeq      int
	HopCount     int
	Lifetime     float64 // µs
}

// Unreachable names a destination lost with the last sequence number known
// for it.
type Unreachable struct {
	DestID int
	Seq    int
}

type RerrFields struct {
	ReporterID  int
	Unreachable []Unreachable
}

// Packet carries the header fields shared by every kind plus exactly one
// variant. Packets are mutated in place as they hop (TTL, per-node attempt
// counters) and dropped from all structures on delivery, expiry, retry
// exhaustion or TTL exceedance.
type Packet struct {
	ID           int
	Kind         Kind
	LengthBits   int
	CreationTime float64 // µs
	Deadline     float64 // maximum lifetime after creation, µs
	ChannelID    int
	Mode         Mode

	// NextHopID is the hop-level destination bound by the routing layer
	// for unicast transmissions.
	NextHopID int

	// Attempts counts transmission attempts per relaying node, keyed by
	// node id. Initialized to zero for every node at creation.
	Attempts map[int]int

	// Timestamps recorded along the packet's life, for delay metrics.
	WaitingStartTime      float64
	FirstAttemptTime      float64
	TransmittingStartTime float64

	ttl int

	Data  *DataFields
	Ack   *AckFields
	Hello *HelloFields
	Rreq  *RreqFields
	Rrep  *RrepFields
	Rerr  *RerrFields
}

// New builds the shared header portion of a packet. Variant fields are set
// by the caller.
func New(id int, kind Kind, lengthBits int, creation, deadline float64, channelID int, mode Mode, nodeCount int) *Packet {
	attempts := make(map[int]int, nodeCount)
	for i := 0; i < nodeCount; i++ {
		attempts[i] = 0
	}
	return &Packet{
		ID:               id,
		Kind:             kind,
		LengthBits:       lengthBits,
		CreationTime:     creation,
		Deadline:         deadline,
		ChannelID:        channelID,
		Mode:             mode,
		NextHopID:        -1,
		Attempts:         attempts,
		FirstAttemptTime: -1,
	}
}

// TTL returns the current time-to-live hop counter.
func (p *Packet) TTL() int { return p.ttl }

// IncreaseTTL bumps the hop counter; it is called exactly once per
// transmission, never on reception.
func (p *Packet) IncreaseTTL() { p.ttl++ }

// Expired reports whether the packet outlived its deadline.
func (p *Packet) Expired(now float64) bool {
	return now >= p.CreationTime+p.Deadline
}

// IDGen hands out packet identifiers. Every kind draws from its own
// monotonically increasing namespace so a data packet can never alias a
// control packet (the bases keep the ranges disjoint and recognizable in
// logs).
type IDGen struct {
	next map[Kind]int
}

var idBase = map[Kind]int{
	KindData:  0,
	KindHello: 10000,
	KindAck:   20000,
	KindRreq:  30000,
	KindRrep:  40000,
	KindRerr:  50000,
}

func NewIDGen() *IDGen {
	g := &IDGen{next: make(map[Kind]int, len(idBase))}
	for k, base := range idBase {
		g.next[k] = base
	}
	return g
}

// Next returns the following identifier in the kind's namespace.
func (g *IDGen) Next(kind Kind) int {
	g.next[kind]++
	return g.next[kind]
}
