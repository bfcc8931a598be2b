package energy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tribui1912/UavNetSim/internal/config"
)

func TestFlightPowerComponents(t *testing.T) {
	cfg := config.Default()
	m := NewModel(cfg, func() float64 { return 0 }, nil)

	hover := m.FlightPower(0)
	assert.Greater(t, hover, 0.0)

	// induced power dominates at low speed, so moderate forward flight is
	// cheaper than hovering for this airframe
	cruise := m.FlightPower(10)
	assert.Less(t, cruise, hover)

	// parasite power takes over at high speed
	fast := m.FlightPower(60)
	assert.Greater(t, fast, cruise)
}

func TestMonitorDrainsAndSleeps(t *testing.T) {
	cfg := config.Default()
	cfg.InitialEnergy = 100
	cfg.EnergyThreshold = 50

	slept := 0
	m := NewModel(cfg, func() float64 { return 10 }, func() { slept++ })
	assert.Equal(t, 100.0, m.Residual())

	perInterval := (m.FlightPower(10) + cfg.PowerIdle) * 0.1
	intervals := 0
	for !m.Sleeping() {
		m.Monitor(1e5)
		intervals++
	}
	assert.Equal(t, 1, slept)
	assert.InDelta(t, 100-float64(intervals)*perInterval, m.Residual(), 1e-9)

	// once asleep only the sleep state power is charged
	before := m.Residual()
	m.Monitor(1e5)
	assert.InDelta(t, before-cfg.PowerSleep*0.1, m.Residual(), 1e-12)
	assert.Equal(t, 1, slept, "sleep callback fires once")
}

func TestCommunicationDrain(t *testing.T) {
	cfg := config.Default()
	m := NewModel(cfg, func() float64 { return 0 }, nil)

	m.ConsumeTransmit(1e6)
	assert.InDelta(t, cfg.InitialEnergy-cfg.PowerTx, m.Residual(), 1e-9)
	m.ConsumeReceive(5e5)
	assert.InDelta(t, cfg.InitialEnergy-cfg.PowerTx-cfg.PowerRx*0.5, m.Residual(), 1e-9)
}

func TestResidualNeverNegative(t *testing.T) {
	cfg := config.Default()
	cfg.InitialEnergy = 0.001
	m := NewModel(cfg, func() float64 { return 0 }, nil)
	m.ConsumeTransmit(1e8)
	assert.Equal(t, 0.0, m.Residual())
}
