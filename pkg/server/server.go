package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"spectrad/pkg/spectro"
)

// openTimeout is the hard ceiling on how long a connect request may keep the
// caller waiting. The open attempt itself keeps running; the caller is told
// it is still outstanding.
const openTimeout = 30 * time.Second

// Server exposes one spectrometer controller over HTTP. The controller's
// entry points are not reentrant, so a single mutex serializes every access.
type Server struct {
	mu   sync.Mutex
	ctrl *spectro.Controller

	store  *Store
	tmpl   *template.Template
	logger log.FieldLogger
}

func New(ctrl *spectro.Controller, store *Store, tmpl *template.Template, logger log.FieldLogger) *Server {
	return &Server{
		ctrl:   ctrl,
		store:  store,
		tmpl:   tmpl,
		logger: logger.WithField("component", "server"),
	}
}

func (s *Server) AddRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /api/v1/spectrometer/connect", s.handleConnect)
	mux.HandleFunc("PUT /api/v1/spectrometer/disconnect", s.handleDisconnect)
	mux.HandleFunc("PUT /api/v1/spectrometer/start", s.handleStart)
	mux.HandleFunc("PUT /api/v1/spectrometer/stop", s.handleStop)

	mux.HandleFunc("GET /api/v1/spectrometer/connected", s.handleConnected)
	mux.HandleFunc("GET /api/v1/spectrometer/state", s.handleState)
	mux.HandleFunc("GET /api/v1/spectrometer/config", s.handleConfig)
	mux.HandleFunc("GET /api/v1/spectrometer/samplerate", s.handleSampleRate)

	mux.HandleFunc("PUT /api/v1/spectrometer/configure", s.handleConfigure)
	mux.HandleFunc("POST /api/v1/spectrometer/sample", s.handleSample)

	mux.HandleFunc("/setup", s.handleSetup)

	return mux
}

type response struct {
	Value        any    `json:"Value,omitempty"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

func writeValue(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response{Value: value})
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response{ErrorMessage: message})
}

// handleConnect opens the device without blocking the caller indefinitely:
// the attempt runs on its own goroutine and the request is answered within
// openTimeout either way. The state machine's Open may block as long as the
// hardware takes; the ceiling is this orchestrator's policy.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	done := make(chan bool, 1)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		done <- s.ctrl.Open()
	}()

	select {
	case ok := <-done:
		if !ok {
			writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to connect: %v", s.ctrl.Err()))
			return
		}
		writeValue(w, true)
	case <-time.After(openTimeout):
		s.logger.Error("Opening the spectrometer took too long")
		writeError(w, http.StatusGatewayTimeout, "connection attempt still outstanding")
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.ctrl.Close()
	err := s.ctrl.Err()
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to disconnect: %v", err))
		return
	}
	writeValue(w, true)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.ctrl.Start()
	s.mu.Unlock()

	if err != nil {
		var connErr *spectro.ConnectionError
		if errors.As(err, &connErr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeValue(w, true)
}

// handleStop cancels a pending temperature wait. Stop is the one call
// allowed to bypass the mutex: it must reach a controller blocked in Start.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	writeValue(w, true)
}

func (s *Server) handleConnected(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	connected := s.ctrl.Connected()
	s.mu.Unlock()
	writeValue(w, connected)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	state := s.ctrl.State()
	s.mu.Unlock()
	writeValue(w, state)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := s.ctrl.CurrentConfiguration()
	s.mu.Unlock()
	writeValue(w, cfg)
}

func (s *Server) handleSampleRate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rate := s.ctrl.EffectiveSampleRate()
	s.mu.Unlock()

	if math.IsNaN(rate) {
		// NaN has no JSON encoding; report unavailability explicitly.
		writeValue(w, map[string]any{"available": false})
		return
	}
	writeValue(w, map[string]any{"available": true, "rate_hz": rate})
}

type configureRequest struct {
	Config            spectro.Config `json:"config"`
	AttemptConnection *bool          `json:"attempt_connection"`
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attempt := true
	if req.AttemptConnection != nil {
		attempt = *req.AttemptConnection
	}

	s.mu.Lock()
	err := s.ctrl.Configure(req.Config, attempt)
	snapshot := s.ctrl.CurrentConfiguration()
	s.mu.Unlock()

	if err != nil {
		var valueErr *spectro.ConfigValueError
		switch {
		case errors.Is(err, spectro.ErrDeviceNotOpen):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &valueErr):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if err := s.store.SaveSnapshot(snapshot); err != nil {
		s.logger.Errorf("Failed to persist configuration snapshot: %v", err)
	}
	writeValue(w, snapshot)
}

type sampleResponse struct {
	Mode        string      `json:"mode"`
	Frames      [][]float64 `json:"frames"`
	Wavelengths []float64   `json:"wavelengths"`
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := s.ctrl.CurrentConfiguration()
	frames, axis, err := s.ctrl.Sample()
	s.mu.Unlock()

	if err != nil {
		var modeErr *spectro.UnsupportedModeError
		if errors.As(err, &modeErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	mode, _ := cfg[spectro.FieldAcquisitionMode].(string)
	writeValue(w, sampleResponse{Mode: mode, Frames: frames, Wavelengths: axis})
}

// RestoreConfiguration re-applies the persisted snapshot, falling back to
// the provided initial configuration when nothing was persisted yet. Called
// once at boot; a device that is switched off is not an error, the intent is
// stored and re-applied on the next successful open.
func (s *Server) RestoreConfiguration(initial spectro.Config) {
	cfg, err := s.store.LoadSnapshot()
	if err != nil {
		if len(initial) == 0 {
			s.logger.Info("No stored configuration to restore")
			return
		}
		s.logger.Info("Applying initial configuration from file")
		cfg = initial
	} else {
		s.logger.Info("Restoring persisted configuration")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ctrl.Configure(cfg, true); err != nil {
		s.logger.Errorf("Restoring configuration failed: %v", err)
	}
}

// Telemetry snapshot for the MQTT publisher.

type Status struct {
	State       string   `json:"state"`
	Connected   bool     `json:"connected"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Status reports the connection state and, when connected, the live sensor
// temperature.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		State:     s.ctrl.State(),
		Connected: s.ctrl.Connected(),
	}
	if status.Connected {
		if temp, err := s.ctrl.Temperature(); err == nil {
			status.Temperature = &temp
		}
	}
	return status
}
