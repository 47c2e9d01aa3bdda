package vis

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	network "github.com/netlabworks/vlansim/core"
	"github.com/netlabworks/vlansim/internal/logging"
	"github.com/netlabworks/vlansim/internal/sim/state"
	"github.com/netlabworks/vlansim/model"
	"github.com/netlabworks/vlansim/timectrl"
)

// Server binds the sim state, the broadcast hub, and the time
// controller behind the WebSocket command surface and the JSON API.
type Server struct {
	sim  *state.SimState
	hub  *Hub
	ctrl *timectrl.TimeController
	log  logging.Logger

	mu    sync.Mutex
	flows []model.TrafficFlow
	seed  string
}

// NewServer wires a server around an already constructed sim state,
// hub, and controller.
func NewServer(sim *state.SimState, hub *Hub, ctrl *timectrl.TimeController, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{sim: sim, hub: hub, ctrl: ctrl, log: log}
}

// Hub returns the broadcast hub, for wiring as the sim event sink.
func (s *Server) Hub() *Hub { return s.hub }

// SetFlows records the traffic flows and RNG seed handed to the engine
// when the simulation is started. Typically called with the loaded
// scenario's flows.
func (s *Server) SetFlows(flows []model.TrafficFlow, seed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = append([]model.TrafficFlow(nil), flows...)
	s.seed = seed
}

// StartSim arms the traffic generators and starts the drive loop.
func (s *Server) StartSim() {
	s.mu.Lock()
	flows, seed := s.flows, s.seed
	s.mu.Unlock()

	s.sim.Start(flows, seed)
	s.ctrl.Start()
}

// StopSim pauses the drive loop. Topology, tables, and statistics are
// preserved.
func (s *Server) StopSim() {
	s.ctrl.Stop()
	s.sim.Stop()
}

// StepOnce advances exactly one tick while paused.
func (s *Server) StepOnce() {
	s.sim.StepOnce()
}

// SetSpeed adjusts the wall-clock tick rate multiplier.
func (s *Server) SetSpeed(mult float64) error {
	return s.ctrl.SetSpeed(mult)
}

// Status reports the current run state.
func (s *Server) Status() StatusPayload {
	return StatusPayload{
		Running: s.sim.Running(),
		Tick:    s.sim.Tick(),
		Speed:   s.ctrl.Speed(),
		Clients: s.hub.ClientCount(),
	}
}

// Middleware wraps a route handler, e.g. with metrics recording. A nil
// middleware leaves the handler untouched.
type Middleware func(route string, next http.Handler) http.Handler

// RegisterRoutes sets up the WebSocket endpoint and the JSON API on the
// given mux.
func RegisterRoutes(mux *http.ServeMux, s *Server, wrap Middleware) {
	if wrap == nil {
		wrap = func(route string, next http.Handler) http.Handler { return next }
	}

	mux.HandleFunc("/ws", HandleWebSocket(s))
	mux.Handle("/api/status", wrap("/api/status", http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/topology", wrap("/api/topology", http.HandlerFunc(s.handleTopology)))
	mux.Handle("/api/packets", wrap("/api/packets", http.HandlerFunc(s.handlePackets)))
	mux.Handle("/api/stats", wrap("/api/stats", http.HandlerFunc(s.handleStats)))
	mux.Handle("/api/tables/", wrap("/api/tables", http.HandlerFunc(s.handleTables)))
	mux.Handle("/api/reachable", wrap("/api/reachable", http.HandlerFunc(s.handleReachable)))
	mux.Handle("/api/path", wrap("/api/path", http.HandlerFunc(s.handlePath)))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.sim.Snapshot())
}

func (s *Server) handlePackets(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	packets := s.sim.ActivePackets()
	if packets == nil {
		packets = []*model.Packet{}
	}
	writeJSON(w, http.StatusOK, packets)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.sim.Stats())
}

// tablesResponse bundles both learning tables of one device.
type tablesResponse struct {
	DeviceID string             `json:"deviceId"`
	MAC      []network.MACEntry `json:"mac"`
	ARP      []network.ARPEntry `json:"arp"`
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/tables/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		httpError(w, http.StatusBadRequest, "device id required")
		return
	}

	mac, err := s.sim.MACTable(deviceID)
	if err != nil {
		if errors.Is(err, state.ErrDeviceNotFound) {
			httpError(w, http.StatusNotFound, "unknown device: "+deviceID)
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	arp, err := s.sim.ARPTable(deviceID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if mac == nil {
		mac = []network.MACEntry{}
	}
	if arp == nil {
		arp = []network.ARPEntry{}
	}
	writeJSON(w, http.StatusOK, tablesResponse{DeviceID: deviceID, MAC: mac, ARP: arp})
}

func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		httpError(w, http.StatusBadRequest, "source query parameter required")
		return
	}
	vlanID, ok := parseVLANParam(w, r)
	if !ok {
		return
	}
	reachable := s.sim.Reachable(source, vlanID)
	if reachable == nil {
		reachable = []string{}
	}
	writeJSON(w, http.StatusOK, reachable)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		httpError(w, http.StatusBadRequest, "source and target query parameters required")
		return
	}
	vlanID, ok := parseVLANParam(w, r)
	if !ok {
		return
	}
	path := s.sim.FindPath(source, target, vlanID)
	if path == nil {
		path = []string{}
	}
	writeJSON(w, http.StatusOK, path)
}

func parseVLANParam(w http.ResponseWriter, r *http.Request) (uint16, bool) {
	raw := r.URL.Query().Get("vlan")
	if raw == "" {
		return model.VLANNone, true
	}
	parsed, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid vlan: "+raw)
		return 0, false
	}
	return uint16(parsed), true
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "GET only")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorPayload{Message: message})
}
