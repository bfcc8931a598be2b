package sim

import (
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tribui1912/UavNetSim/internal/config"
)

type DroneCfg struct {
	Count  int  `yaml:"count" json:"count"`
	Static bool `yaml:"static" json:"static"`
}

type MapCfg struct {
	Length float64 `yaml:"length" json:"length"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

type TrafficCfg struct {
	PacketsPerSecond float64 `yaml:"packets_per_second" json:"packets_per_second"`
	PayloadBytes     int     `yaml:"payload_bytes" json:"payload_bytes"`
	VariablePayload  bool    `yaml:"variable_payload" json:"variable_payload"`
}

type RadioCfg struct {
	SubChannels         int     `yaml:"sub_channels" json:"sub_channels"`
	DataLossProbability float64 `yaml:"data_loss_probability" json:"data_loss_probability"`
	SNRThresholdDB      float64 `yaml:"snr_threshold_db" json:"snr_threshold_db"`
}

type EnergyCfg struct {
	InitialJoules   float64 `yaml:"initial_joules" json:"initial_joules"`
	ThresholdJoules float64 `yaml:"threshold_joules" json:"threshold_joules"`
}

type LogCfg struct {
	Level       string `yaml:"level" json:"level"`
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
	ExcelFile   string `yaml:"excel_file" json:"excel_file"`
}

type ServerCfg struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

type MQTTCfg struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
}

// Scenario is the user-facing run description. Zero values mean "keep the
// built-in default".
type Scenario struct {
	DurationSeconds float64    `yaml:"duration_s" json:"duration_s"`
	Seed            int64      `yaml:"seed" json:"seed"`
	Drones          DroneCfg   `yaml:"drones" json:"drones"`
	Map             MapCfg     `yaml:"map" json:"map"`
	Speed           float64    `yaml:"speed" json:"speed"`
	Traffic         TrafficCfg `yaml:"traffic" json:"traffic"`
	Radio           RadioCfg   `yaml:"radio" json:"radio"`
	Energy          EnergyCfg  `yaml:"energy" json:"energy"`
	Logging         LogCfg     `yaml:"logging" json:"logging"`
	Server          ServerCfg  `yaml:"server" json:"server"`
	MQTT            MQTTCfg    `yaml:"mqtt" json:"mqtt"`
}

// LoadScenario reads a YAML scenario, falling back to JSON for the same
// shape.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{}
	if yaml.Unmarshal(f, sc) == nil {
		return sc, nil
	}
	if err := json.Unmarshal(f, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Config folds the scenario overrides into the defaults and returns the
// finalized parameter set.
func (sc *Scenario) Config() *config.Config {
	cfg := config.Default()
	if sc.DurationSeconds > 0 {
		cfg.SimTime = sc.DurationSeconds * 1e6
	}
	if sc.Seed != 0 {
		cfg.Seed = sc.Seed
	}
	if sc.Drones.Count > 0 {
		cfg.NumberOfDrones = sc.Drones.Count
	}
	cfg.StaticCase = sc.Drones.Static
	if sc.Map.Length > 0 {
		cfg.MapLength = sc.Map.Length
	}
	if sc.Map.Width > 0 {
		cfg.MapWidth = sc.Map.Width
	}
	if sc.Map.Height > 0 {
		cfg.MapHeight = sc.Map.Height
	}
	if sc.Speed > 0 {
		cfg.DefaultSpeed = sc.Speed
	}
	if sc.Traffic.PacketsPerSecond > 0 {
		cfg.PacketGenerationRate = sc.Traffic.PacketsPerSecond
	}
	if sc.Traffic.PayloadBytes > 0 {
		cfg.AveragePayloadLength = sc.Traffic.PayloadBytes * 8
	}
	cfg.VariablePayloadLength = sc.Traffic.VariablePayload
	if sc.Radio.SubChannels > 0 {
		cfg.NumberOfSubChannels = sc.Radio.SubChannels
	}
	if sc.Radio.DataLossProbability > 0 {
		cfg.DataLossProbability = sc.Radio.DataLossProbability
	}
	if sc.Radio.SNRThresholdDB != 0 {
		cfg.SNRThreshold = sc.Radio.SNRThresholdDB
	}
	if sc.Energy.InitialJoules > 0 {
		cfg.InitialEnergy = sc.Energy.InitialJoules
	}
	if sc.Energy.ThresholdJoules > 0 {
		cfg.EnergyThreshold = sc.Energy.ThresholdJoules
	}
	cfg.Finalize()
	return cfg
}
