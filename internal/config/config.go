// Package config holds the immutable parameter set of a simulation run.
//
// A Config is built once (from defaults plus a scenario file) and then passed
// by pointer into the scheduler, channel, MAC, routing and node layers at
// construction time. Nothing mutates it after Finalize.
package config

// All durations are in microseconds of simulated time, all lengths in bits,
// all powers in Watt and all distances in meters unless stated otherwise.
type Config struct {
	// simulation
	Seed           int64
	NumberOfDrones int
	SimTime        float64 // µs
	MapLength      float64
	MapWidth       float64
	MapHeight      float64
	DefaultSpeed   float64 // m/s
	StaticCase     bool    // freeze all positions (useful for tests)

	// radio
	TransmittingPower   float64
	CarrierFrequency    float64 // Hz
	NoisePower          float64
	SNRThreshold        float64 // dB
	LightSpeed          float64 // m/s
	PathLossExponent    float64
	SensingRange        float64
	BitRate             float64 // bit/s
	Bandwidth           float64 // Hz
	NumberOfSubChannels int

	// packets
	AveragePayloadLength    int // bit
	VariablePayloadLength   bool
	MaximumPayloadVariation int     // bit
	PacketGenerationRate    float64 // packets per second (Poisson)
	MaxTTL                  int
	PacketLifetime          float64 // µs
	IPHeaderLength          int
	MACHeaderLength         int
	PHYHeaderLength         int
	AckPacketLength         int
	HelloPacketLength       int

	// mac
	SlotDuration             float64
	SIFSDuration             float64
	DIFSDuration             float64
	CWMin                    int
	AckTimeout               float64
	MaxRetransmissionAttempt int
	MaxQueueSize             int

	// channel error model
	DataLossProbability float64

	// energy
	InitialEnergy   float64 // J
	EnergyThreshold float64 // J
	PowerTx         float64
	PowerRx         float64
	PowerIdle       float64
	PowerSleep      float64

	// rotary-wing flight power model (Zeng 2019)
	ProfileDragCoefficient      float64
	AirDensity                  float64
	RotorSolidity               float64
	RotorDiscArea               float64
	BladeAngularVelocity        float64
	RotorRadius                 float64
	IncrementalCorrectionFactor float64
	AircraftWeight              float64
	RotorBladeTipSpeed          float64
	MeanRotorVelocity           float64
	FuselageDragRatio           float64

	// neighbor discovery
	HelloInterval   float64
	NeighborTimeout float64

	// aodv
	ActiveRouteTimeout float64
	NetDiameter        int
	NodeTraversalTime  float64
}

// IEEE 802.11b PHY/MAC timing, the profile the whole parameter set is
// derived from.
const (
	plcpPreamble = 128 + 16
	plcpHeader   = 8 + 8 + 16 + 16

	ackHeaderLength = 16 * 8
)

// Default returns the baseline parameter set: ten drones on a 600x600x100 m
// map, 802.11b radios on three sub-channels, 30 s of simulated time.
func Default() *Config {
	c := &Config{
		Seed:           2025,
		NumberOfDrones: 10,
		SimTime:        30 * 1e6,
		MapLength:      600,
		MapWidth:       600,
		MapHeight:      100,
		DefaultSpeed:   10,

		TransmittingPower:   0.1,
		CarrierFrequency:    2.4 * 1e9,
		NoisePower:          4 * 1e-11,
		SNRThreshold:        6,
		LightSpeed:          3 * 1e8,
		PathLossExponent:    2,
		SensingRange:        750,
		BitRate:             2 * 1e6,
		Bandwidth:           22 * 1e6,
		NumberOfSubChannels: 3,

		AveragePayloadLength:    1024 * 8,
		MaximumPayloadVariation: 1600,
		PacketGenerationRate:    5,
		PacketLifetime:          10 * 1e6,
		IPHeaderLength:          20 * 8,
		MACHeaderLength:         14 * 8,
		PHYHeaderLength:         plcpPreamble + plcpHeader,

		SlotDuration:             20,
		SIFSDuration:             10,
		CWMin:                    31,
		MaxRetransmissionAttempt: 5,
		MaxQueueSize:             200,

		DataLossProbability: 0.05,

		InitialEnergy:   20 * 1e3,
		EnergyThreshold: 2000,
		PowerTx:         1.5,
		PowerRx:         1.0,
		PowerIdle:       0.1,
		PowerSleep:      0.001,

		ProfileDragCoefficient:      0.012,
		AirDensity:                  1.225,
		RotorSolidity:               0.05,
		RotorDiscArea:               0.79,
		BladeAngularVelocity:        400,
		RotorRadius:                 0.5,
		IncrementalCorrectionFactor: 0.1,
		AircraftWeight:              100,
		RotorBladeTipSpeed:          500,
		MeanRotorVelocity:           7.2,
		FuselageDragRatio:           0.3,

		HelloInterval:   1.0 * 1e6,
		NeighborTimeout: 2.5 * 1e6,

		ActiveRouteTimeout: 3.0 * 1e6,
		NetDiameter:        35,
		NodeTraversalTime:  40000,
	}
	c.Finalize()
	return c
}

// Finalize recomputes every derived field. Call it after overriding any of
// the primary fields.
func (c *Config) Finalize() {
	c.MaxTTL = c.NumberOfDrones + 1
	c.AckPacketLength = ackHeaderLength + 14*8
	c.HelloPacketLength = c.IPHeaderLength + c.MACHeaderLength + c.PHYHeaderLength + 256
	c.DIFSDuration = c.SIFSDuration + 2*c.SlotDuration
	c.AckTimeout = float64(c.AckPacketLength)/c.BitRate*1e6 + c.SIFSDuration + 50
}

// DataPacketLength is the on-air length of a data packet carrying the given
// payload, all protocol headers included.
func (c *Config) DataPacketLength(payloadBits int) int {
	return c.IPHeaderLength + c.MACHeaderLength + c.PHYHeaderLength + payloadBits
}

// TransmissionTime returns the air time of lengthBits at the configured bit
// rate, in µs.
func (c *Config) TransmissionTime(lengthBits int) float64 {
	return float64(lengthBits) / c.BitRate * 1e6
}

// MaxTransmissionTime is the longest possible air time of a single data
// packet, used by the inbox housekeeping rule.
func (c *Config) MaxTransmissionTime() float64 {
	payload := c.AveragePayloadLength
	if c.VariablePayloadLength {
		payload += c.MaximumPayloadVariation
	}
	return c.TransmissionTime(c.DataPacketLength(payload))
}

// PathDiscoveryTime bounds how long a route discovery may take and therefore
// how long a duplicate-RREQ cache entry lives.
func (c *Config) PathDiscoveryTime() float64 {
	netTraversal := 2 * c.NodeTraversalTime * float64(c.NetDiameter)
	return 2 * netTraversal
}
