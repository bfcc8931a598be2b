// Package metrics is the write-only sink for network performance events:
// deliveries, control traffic, collisions and final drops. It is consumed at
// the end of a run as a JSON flush, an Excel report, or a printed summary.
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/tribui1912/UavNetSim/internal/packet"
)

// Collector accumulates counters for one simulation run. The protocol core
// runs on a single logical timeline, but the websocket server reads
// snapshots concurrently, hence the mutex.
type Collector struct {
	mu sync.Mutex

	RunID uuid.UUID

	generatedNum     int
	controlPacketNum int
	collisionNum     int

	arrived     map[int]struct{} // delivered packet ids (idempotence guard)
	deliverTime map[int]float64  // packet id -> end-to-end latency, µs
	throughput  map[int]float64  // packet id -> bit/s
	hopCount    map[int]int      // packet id -> hops via TTL

	macDelay []float64 // ms, one sample per finished unicast exchange

	queueDrops   int
	expiredDrops int
	noRouteDrops int
	ttlDrops     int
}

func NewCollector() *Collector {
	return &Collector{
		RunID:       uuid.New(),
		arrived:     make(map[int]struct{}),
		deliverTime: make(map[int]float64),
		throughput:  make(map[int]float64),
		hopCount:    make(map[int]int),
	}
}

// AddGenerated counts a data packet admitted at its source.
func (c *Collector) AddGenerated() {
	c.mu.Lock()
	c.generatedNum++
	c.mu.Unlock()
}

// AddControlSent counts one control packet transmission.
func (c *Collector) AddControlSent() {
	c.mu.Lock()
	c.controlPacketNum++
	c.mu.Unlock()
}

// AddCollision counts one interference event observed by a receiver.
func (c *Collector) AddCollision() {
	c.mu.Lock()
	c.collisionNum++
	c.mu.Unlock()
}

// Delivered records a data packet reaching its destination. Each packet id
// is counted at most once even if received redundantly; it reports whether
// this was the first delivery.
func (c *Collector) Delivered(p *packet.Packet, now float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.arrived[p.ID]; dup {
		return false
	}
	latency := now - p.CreationTime // µs
	c.arrived[p.ID] = struct{}{}
	c.deliverTime[p.ID] = latency
	c.throughput[p.ID] = float64(p.LengthBits) / (latency / 1e6)
	c.hopCount[p.ID] = p.TTL()
	return true
}

// AddMACDelay records the channel-access delay of a unicast exchange, from
// first attempt to ACK or retry exhaustion.
func (c *Collector) AddMACDelay(delayUs float64) {
	c.mu.Lock()
	c.macDelay = append(c.macDelay, delayUs/1e3)
	c.mu.Unlock()
}

func (c *Collector) AddQueueDrop() {
	c.mu.Lock()
	c.queueDrops++
	c.mu.Unlock()
}

func (c *Collector) AddExpiredDrop() {
	c.mu.Lock()
	c.expiredDrops++
	c.mu.Unlock()
}

func (c *Collector) AddNoRouteDrop() {
	c.mu.Lock()
	c.noRouteDrops++
	c.mu.Unlock()
}

func (c *Collector) AddTTLDrop() {
	c.mu.Lock()
	c.ttlDrops++
	c.mu.Unlock()
}

// DeliveredCount returns how many distinct data packets arrived.
func (c *Collector) DeliveredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.arrived)
}

// Summary is the aggregate view of one run.
type Summary struct {
	RunID            string  `json:"run_id"`
	Generated        int     `json:"generated"`
	Delivered        int     `json:"delivered"`
	PDR              float64 `json:"pdr_percent"`
	AvgE2EDelayMs    float64 `json:"avg_e2e_delay_ms"`
	JitterMs         float64 `json:"jitter_ms"`
	AvgThroughputKbs float64 `json:"avg_throughput_kbps"`
	AvgHopCount      float64 `json:"avg_hop_count"`
	RoutingLoad      float64 `json:"routing_load"`
	AvgMACDelayMs    float64 `json:"avg_mac_delay_ms"`
	Collisions       int     `json:"collisions"`
	ControlPackets   int     `json:"control_packets"`
	QueueDrops       int     `json:"queue_drops"`
	ExpiredDrops     int     `json:"expired_drops"`
	NoRouteDrops     int     `json:"no_route_drops"`
	TTLDrops         int     `json:"ttl_drops"`
}

// Summarize reduces the per-packet samples to the headline figures.
func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	// reduce in packet-id order so a replayed run produces bit-identical
	// aggregates
	ids := make([]int, 0, len(c.deliverTime))
	for id := range c.deliverTime {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	latencies := make([]float64, 0, len(ids))
	throughputs := make([]float64, 0, len(ids))
	hops := make([]float64, 0, len(ids))
	for _, id := range ids {
		latencies = append(latencies, c.deliverTime[id]/1e3)    // ms
		throughputs = append(throughputs, c.throughput[id]/1e3) // kbps
		hops = append(hops, float64(c.hopCount[id]))
	}

	s := Summary{
		RunID:          c.RunID.String(),
		Generated:      c.generatedNum,
		Delivered:      len(c.arrived),
		Collisions:     c.collisionNum,
		ControlPackets: c.controlPacketNum,
		QueueDrops:     c.queueDrops,
		ExpiredDrops:   c.expiredDrops,
		NoRouteDrops:   c.noRouteDrops,
		TTLDrops:       c.ttlDrops,
	}
	if c.generatedNum > 0 {
		s.PDR = float64(len(c.arrived)) / float64(c.generatedNum) * 100
	}
	if len(latencies) > 0 {
		s.AvgE2EDelayMs = stat.Mean(latencies, nil)
		s.AvgThroughputKbs = stat.Mean(throughputs, nil)
		s.AvgHopCount = stat.Mean(hops, nil)
		s.RoutingLoad = float64(c.controlPacketNum) / float64(len(c.arrived))
	}
	if len(latencies) > 1 {
		s.JitterMs = stat.StdDev(latencies, nil)
	}
	if len(c.macDelay) > 0 {
		s.AvgMACDelayMs = stat.Mean(c.macDelay, nil)
	}
	return s
}

// MACDelaySamples returns a copy of the recorded channel-access delays (ms).
func (c *Collector) MACDelaySamples() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.macDelay))
	copy(out, c.macDelay)
	return out
}

// Flush writes the summary as indented JSON.
func (c *Collector) Flush(file string) error {
	s := c.Summarize()
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Print writes the summary to stdout in the classic end-of-run format.
func (c *Collector) Print() {
	s := c.Summarize()
	fmt.Println("Totally send:", s.Generated, "data packets")
	fmt.Println("Packet delivery ratio is:", s.PDR, "%")
	fmt.Println("Average end-to-end delay is:", s.AvgE2EDelayMs, "ms")
	fmt.Println("Routing load is:", s.RoutingLoad)
	fmt.Println("Average throughput is:", s.AvgThroughputKbs, "Kbps")
	fmt.Println("Average hop count is:", s.AvgHopCount)
	fmt.Println("Collision num is:", s.Collisions)
	fmt.Println("Average mac delay is:", s.AvgMACDelayMs, "ms")
}
