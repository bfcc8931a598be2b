// Package energy tracks each node's battery. Drain has two components: the
// rotary-wing flight power model of Zeng et al. 2019, charged continuously
// by a periodic monitor, and communication power charged per transmit or
// receive interval by the MAC and reception paths.
package energy

import (
	"math"

	"github.com/tribui1912/UavNetSim/internal/config"
)

// SpeedFunc reports the node's current scalar speed in m/s.
type SpeedFunc func() float64

type Model struct {
	cfg     *config.Config
	speed   SpeedFunc
	onSleep func()

	residual float64
	sleeping bool
}

func NewModel(cfg *config.Config, speed SpeedFunc, onSleep func()) *Model {
	return &Model{
		cfg:      cfg,
		speed:    speed,
		onSleep:  onSleep,
		residual: cfg.InitialEnergy,
	}
}

func (m *Model) Residual() float64 { return m.residual }
func (m *Model) Sleeping() bool    { return m.sleeping }

// FlightPower is the mechanical power in watts needed to fly at speed v,
// the sum of blade profile, induced and parasite power.
func (m *Model) FlightPower(v float64) float64 {
	c := m.cfg
	p0 := c.ProfileDragCoefficient / 8 * c.AirDensity * c.RotorSolidity * c.RotorDiscArea *
		math.Pow(c.BladeAngularVelocity, 3) * math.Pow(c.RotorRadius, 3)
	p1 := (1 + c.IncrementalCorrectionFactor) * math.Pow(c.AircraftWeight, 1.5) /
		math.Sqrt(2*c.AirDensity*c.RotorDiscArea)

	tip := c.RotorBladeTipSpeed
	v0 := c.MeanRotorVelocity

	blade := p0 * (1 + 3*v*v/(tip*tip))
	induced := p1 * math.Sqrt(math.Sqrt(1+math.Pow(v, 4)/(4*math.Pow(v0, 4)))-v*v/(2*v0*v0))
	parasite := 0.5 * c.FuselageDragRatio * c.AirDensity * c.RotorSolidity * c.RotorDiscArea * math.Pow(v, 3)

	return blade + induced + parasite
}

// ConsumeTransmit charges the radio's transmit power for durUs microseconds.
func (m *Model) ConsumeTransmit(durUs float64) {
	m.drain(m.cfg.PowerTx * durUs / 1e6)
}

// ConsumeReceive charges the radio's receive power for durUs microseconds.
func (m *Model) ConsumeReceive(durUs float64) {
	m.drain(m.cfg.PowerRx * durUs / 1e6)
}

// Monitor charges one monitoring interval of flight plus baseline radio
// power, then checks the sleep threshold. Called periodically from the
// simulation timeline.
func (m *Model) Monitor(intervalUs float64) {
	secs := intervalUs / 1e6
	if m.sleeping {
		m.drain(m.cfg.PowerSleep * secs)
		return
	}
	m.drain((m.FlightPower(m.speed()) + m.cfg.PowerIdle) * secs)
	if m.residual <= m.cfg.EnergyThreshold {
		m.sleeping = true
		if m.onSleep != nil {
			m.onSleep()
		}
	}
}

func (m *Model) drain(joules float64) {
	m.residual -= joules
	if m.residual < 0 {
		m.residual = 0
	}
}
