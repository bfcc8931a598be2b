// Package mobility moves nodes through the simulation volume. The default
// model is 3-D random waypoint: fly at constant speed toward a random point,
// pick another on arrival. An external controller can override the next
// waypoint (SetTarget) or mark keep-out spheres the picker avoids.
package mobility

import (
	"math/rand"

	"github.com/tribui1912/UavNetSim/internal/config"
	"github.com/tribui1912/UavNetSim/internal/mesh"
)

// Obstacle is a spherical keep-out region.
type Obstacle struct {
	Center mesh.Vector3
	Radius float64
}

// ObstacleFunc returns the current obstacle set. The simulator owns the
// list; models only read it.
type ObstacleFunc func() []Obstacle

type RandomWaypoint3D struct {
	cfg       *config.Config
	rng       *rand.Rand
	obstacles ObstacleFunc

	pos     mesh.Vector3
	dest    mesh.Vector3
	speed   float64
	holding bool // arrived at an externally set target, stay put

	target *mesh.Vector3 // overrides dest until reached
}

func NewRandomWaypoint3D(cfg *config.Config, rng *rand.Rand, start mesh.Vector3, obstacles ObstacleFunc) *RandomWaypoint3D {
	m := &RandomWaypoint3D{
		cfg:       cfg,
		rng:       rng,
		obstacles: obstacles,
		pos:       start,
		speed:     cfg.DefaultSpeed,
	}
	m.dest = m.nextWaypoint()
	return m
}

func (m *RandomWaypoint3D) Position() mesh.Vector3 { return m.pos }

// PlaceAt pins the node to a position, for scripted topologies.
func (m *RandomWaypoint3D) PlaceAt(p mesh.Vector3) { m.pos = p }

// Speed is the current scalar speed in m/s, zero while holding or static.
func (m *RandomWaypoint3D) Speed() float64 {
	if m.cfg.StaticCase || m.holding {
		return 0
	}
	return m.speed
}

// Velocity is the instantaneous velocity vector.
func (m *RandomWaypoint3D) Velocity() mesh.Vector3 {
	if m.Speed() == 0 {
		return mesh.Vector3{}
	}
	to := m.heading().Sub(m.pos)
	d := to.Norm()
	if d == 0 {
		return mesh.Vector3{}
	}
	return to.Scale(m.speed / d)
}

// SetTarget points the node at an externally chosen position. The node flies
// straight there and holds until a newer target arrives.
func (m *RandomWaypoint3D) SetTarget(t mesh.Vector3) {
	clamped := t.Clamp(m.cfg.MapLength, m.cfg.MapWidth, m.cfg.MapHeight)
	m.target = &clamped
	m.holding = false
}

func (m *RandomWaypoint3D) heading() mesh.Vector3 {
	if m.target != nil {
		return *m.target
	}
	return m.dest
}

// Step advances the position by dt microseconds of simulated time.
func (m *RandomWaypoint3D) Step(dt float64) {
	if m.cfg.StaticCase || m.holding {
		return
	}
	stride := m.speed * dt / 1e6
	goal := m.heading()
	to := goal.Sub(m.pos)
	dist := to.Norm()
	if dist <= stride {
		m.pos = goal
		if m.target != nil {
			m.target = nil
			m.holding = true
			return
		}
		m.dest = m.nextWaypoint()
		return
	}
	m.pos = m.pos.Add(to.Scale(stride / dist)).
		Clamp(m.cfg.MapLength, m.cfg.MapWidth, m.cfg.MapHeight)
}

// nextWaypoint draws a uniform point in the volume, retrying a bounded
// number of times to land outside every obstacle.
func (m *RandomWaypoint3D) nextWaypoint() mesh.Vector3 {
	for try := 0; try < 32; try++ {
		p := mesh.Vector3{
			X: m.rng.Float64() * m.cfg.MapLength,
			Y: m.rng.Float64() * m.cfg.MapWidth,
			Z: m.rng.Float64() * m.cfg.MapHeight,
		}
		if m.clear(p) {
			return p
		}
	}
	return m.pos
}

func (m *RandomWaypoint3D) clear(p mesh.Vector3) bool {
	if m.obstacles == nil {
		return true
	}
	for _, o := range m.obstacles() {
		if p.DistanceTo(o.Center) < o.Radius {
			return false
		}
	}
	return true
}

// RandomStart draws an initial position uniformly in the volume.
func RandomStart(cfg *config.Config, rng *rand.Rand) mesh.Vector3 {
	return mesh.Vector3{
		X: rng.Float64() * cfg.MapLength,
		Y: rng.Float64() * cfg.MapWidth,
		Z: rng.Float64() * cfg.MapHeight,
	}
}
