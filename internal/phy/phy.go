// Package phy implements large-scale fading and SINR capture. The channel
// package records who transmitted when; this package decides, for each
// completed transmission, how strong it arrived and whether the receiver can
// decode it in the presence of concurrent interferers.
package phy

import (
	"math"
	"math/rand"

	"github.com/tribui1912/UavNetSim/internal/channel"
	"github.com/tribui1912/UavNetSim/internal/config"
)

const speedOfLight = 3e8 // m/s

// sentinel SINR assigned when a random data loss event is drawn, low enough
// to fail any plausible capture threshold
const lostSINR = -100.0

type Calculator struct {
	cfg *config.Config
	pos channel.PositionFunc
}

func NewCalculator(cfg *config.Config, pos channel.PositionFunc) *Calculator {
	return &Calculator{cfg: cfg, pos: pos}
}

// PathLoss is the free-space power gain (c / 4πfd)² at distance d meters.
func (c *Calculator) PathLoss(dist float64) float64 {
	if dist <= 0 {
		return 1
	}
	g := speedOfLight / (4 * math.Pi * c.cfg.CarrierFrequency * dist)
	return g * g
}

// ReceivedPower is the power in watts arriving at the receiver from txID.
func (c *Calculator) ReceivedPower(txID, rxID int) float64 {
	dist := c.pos(rxID).DistanceTo(c.pos(txID))
	return c.cfg.TransmittingPower * c.PathLoss(dist)
}

// SINRList computes the SINR in dB of each candidate transmission at the
// receiver. For candidate i, every other concurrent transmitter on the same
// or an adjacent sub-channel contributes interference. With probability
// DataLossProbability a candidate is independently wiped out (fading or
// hardware loss the large-scale model does not capture).
func (c *Calculator) SINRList(receiverID int, mains, all []channel.Transmitter, rng *rand.Rand) []float64 {
	out := make([]float64, len(mains))
	for i, main := range mains {
		if rng.Float64() < c.cfg.DataLossProbability {
			out[i] = lostSINR
			continue
		}
		signal := c.ReceivedPower(main.NodeID, receiverID)
		interference := 0.0
		for _, other := range all {
			if other.NodeID == main.NodeID {
				continue
			}
			if abs(other.ChannelID-main.ChannelID) > 1 {
				continue
			}
			interference += c.ReceivedPower(other.NodeID, receiverID)
		}
		out[i] = 10 * math.Log10(signal/(c.cfg.NoisePower+interference))
	}
	return out
}

// MaxCommRange is the distance at which an interference-free transmission
// arrives exactly at the capture threshold.
func (c *Calculator) MaxCommRange() float64 {
	thr := math.Pow(10, c.cfg.SNRThreshold/10)
	return speedOfLight / (4 * math.Pi * c.cfg.CarrierFrequency) *
		math.Sqrt(c.cfg.TransmittingPower/(c.cfg.NoisePower*thr))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
