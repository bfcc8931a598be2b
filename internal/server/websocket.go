// Package server exposes the observation and control surface of a running
// simulation over HTTP: a websocket event feed, a JSON state snapshot, and
// command endpoints that funnel mutations into the simulator's command
// queue.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/apex/log"
	"github.com/gorilla/websocket"

	"github.com/tribui1912/UavNetSim/internal/eventbus"
	"github.com/tribui1912/UavNetSim/internal/mesh"
	"github.com/tribui1912/UavNetSim/internal/mobility"
	"github.com/tribui1912/UavNetSim/internal/sim"
)

var upgrader = websocket.Upgrader{
	// visualization frontends run from anywhere during development
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	sim *sim.Simulator
	bus *eventbus.Bus
}

func New(s *sim.Simulator, bus *eventbus.Bus) *Server {
	return &Server{sim: s, bus: bus}
}

// wsHandler upgrades the connection and streams bus events until the client
// goes away.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for ev := range s.bus.Subscribe() {
		if err := conn.WriteJSON(ev); err != nil {
			log.WithError(err).Debug("websocket client gone")
			return
		}
	}
}

// stateHandler serves a point-in-time snapshot of every node.
func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.sim.Snapshot()); err != nil {
		log.WithError(err).Error("state encode failed")
	}
}

// TargetPayload is the body of POST /command/target.
type TargetPayload struct {
	NodeID int     `json:"node_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

func (s *Server) targetHandler(w http.ResponseWriter, r *http.Request) {
	var p TargetPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.sim.SetTarget(p.NodeID, mesh.Vector3{X: p.X, Y: p.Y, Z: p.Z}) {
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("target accepted"))
}

// ObstaclePayload is the body of POST /command/obstacle.
type ObstaclePayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Radius float64 `json:"radius"`
}

func (s *Server) obstacleHandler(w http.ResponseWriter, r *http.Request) {
	var p ObstaclePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ok := s.sim.AddObstacle(mobility.Obstacle{
		Center: mesh.Vector3{X: p.X, Y: p.Y, Z: p.Z},
		Radius: p.Radius,
	})
	if !ok {
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("obstacle accepted"))
}

// Start runs the HTTP server in the background.
func (s *Server) Start(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)
	mux.HandleFunc("/state", s.stateHandler)
	mux.HandleFunc("/command/target", s.targetHandler)
	mux.HandleFunc("/command/obstacle", s.obstacleHandler)

	go func() {
		log.Infof("http server on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("http server stopped")
		}
	}()
}
