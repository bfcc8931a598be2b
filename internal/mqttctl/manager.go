// Package mqttctl is the MQTT control plane of a running simulation: ground
// control publishes commands (redirect a drone, mark a keep-out zone) and the
// manager funnels them into the simulator's command queue, so they take
// effect on the simulated timeline like any other event.
package mqttctl

import (
	"encoding/json"
	"fmt"

	"github.com/apex/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tribui1912/UavNetSim/internal/mesh"
	"github.com/tribui1912/UavNetSim/internal/mobility"
	"github.com/tribui1912/UavNetSim/internal/sim"
)

const (
	TopicTarget   = "uavnet/command/target"
	TopicObstacle = "uavnet/command/obstacle"
	TopicSummary  = "uavnet/status/summary"
)

// TargetCommand redirects one drone to a fixed position.
type TargetCommand struct {
	NodeID int     `json:"node_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

// ObstacleCommand registers a keep-out sphere.
type ObstacleCommand struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Radius float64 `json:"radius"`
}

type Manager struct {
	client mqtt.Client
	sim    *sim.Simulator
}

// New connects to the broker and subscribes to the command topics.
func New(broker, clientID string, s *sim.Simulator) (*Manager, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	m := &Manager{sim: s}
	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	if err := m.subscribe(TopicTarget, m.onTarget); err != nil {
		return nil, err
	}
	if err := m.subscribe(TopicObstacle, m.onObstacle); err != nil {
		return nil, err
	}
	log.Infof("mqtt control plane connected to %s", broker)
	return m, nil
}

func (m *Manager) subscribe(topic string, handler mqtt.MessageHandler) error {
	token := m.client.Subscribe(topic, 1, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

func (m *Manager) onTarget(_ mqtt.Client, msg mqtt.Message) {
	var cmd TargetCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.WithError(err).Errorf("bad payload on %s", msg.Topic())
		return
	}
	if !m.sim.SetTarget(cmd.NodeID, mesh.Vector3{X: cmd.X, Y: cmd.Y, Z: cmd.Z}) {
		log.Warnf("command queue full, target for node %d dropped", cmd.NodeID)
	}
}

func (m *Manager) onObstacle(_ mqtt.Client, msg mqtt.Message) {
	var cmd ObstacleCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.WithError(err).Errorf("bad payload on %s", msg.Topic())
		return
	}
	ok := m.sim.AddObstacle(mobility.Obstacle{
		Center: mesh.Vector3{X: cmd.X, Y: cmd.Y, Z: cmd.Z},
		Radius: cmd.Radius,
	})
	if !ok {
		log.Warn("command queue full, obstacle dropped")
	}
}

// PublishSummary pushes the final run figures to the status topic.
func (m *Manager) PublishSummary(payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := m.client.Publish(TopicSummary, 1, true, body)
	token.Wait()
	return token.Error()
}

// Disconnect leaves the broker cleanly.
func (m *Manager) Disconnect() {
	m.client.Disconnect(250)
}
