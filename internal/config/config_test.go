package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFinalizeDerivesTimingFromPrimaries(t *testing.T) {
	c := Default()

	assert.Equal(t, c.NumberOfDrones+1, c.MaxTTL)
	assert.Equal(t, c.SIFSDuration+2*c.SlotDuration, c.DIFSDuration)

	ackAir := float64(c.AckPacketLength) / c.BitRate * 1e6
	assert.InDelta(t, ackAir+c.SIFSDuration+50, c.AckTimeout, 1e-9)
}

func TestFinalizeTracksOverrides(t *testing.T) {
	c := Default()
	c.NumberOfDrones = 25
	c.SlotDuration = 9
	c.Finalize()

	assert.Equal(t, 26, c.MaxTTL)
	assert.Equal(t, c.SIFSDuration+18, c.DIFSDuration)
}

func TestDataPacketLengthIncludesAllHeaders(t *testing.T) {
	c := Default()
	payload := 1024 * 8

	want := c.IPHeaderLength + c.MACHeaderLength + c.PHYHeaderLength + payload
	assert.Equal(t, want, c.DataPacketLength(payload))
}

func TestMaxTransmissionTimeCoversHeadersAndVariation(t *testing.T) {
	c := Default()

	fixed := c.MaxTransmissionTime()
	assert.InDelta(t, c.TransmissionTime(c.DataPacketLength(c.AveragePayloadLength)), fixed, 1e-9)

	c.VariablePayloadLength = true
	longest := c.DataPacketLength(c.AveragePayloadLength + c.MaximumPayloadVariation)
	assert.InDelta(t, c.TransmissionTime(longest), c.MaxTransmissionTime(), 1e-9)
	assert.Greater(t, c.MaxTransmissionTime(), fixed)
}

func TestPathDiscoveryTimeScalesWithDiameter(t *testing.T) {
	c := Default()
	assert.InDelta(t, 4*c.NodeTraversalTime*float64(c.NetDiameter), c.PathDiscoveryTime(), 1e-9)
}
