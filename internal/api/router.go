package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/pm8sim/internal/bridges/modbus"
	"github.com/nerrad567/pm8sim/internal/device"
	"github.com/nerrad567/pm8sim/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/panel/*", http.StripPrefix("/panel", panel.Handler(s.cfg.PanelDir)))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/panel/", http.StatusFound)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleState)
		r.Get("/registers", s.handleRegisters)
		r.Put("/setpoint", s.handleSetpoint)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// SerialResponse describes the Modbus link in health responses.
type SerialResponse struct {
	Port       string `json:"port"`
	BaudRate   int    `json:"baud_rate"`
	Listening  bool   `json:"listening"`
	Exceptions uint64 `json:"exceptions"`
	BadFrames  uint64 `json:"bad_frames"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	DeviceID      string          `json:"device_id"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Serial        *SerialResponse `json:"serial,omitempty"`
}

// StateResponse is returned by GET /state and PUT /setpoint.
type StateResponse struct {
	DeviceID string        `json:"device_id"`
	State    device.Values `json:"state"`
	Stats    device.Stats  `json:"stats"`
}

// RegisterResponse describes one mapped register.
type RegisterResponse struct {
	Address  uint16  `json:"address"`
	Quantity string  `json:"quantity"`
	Encoding string  `json:"encoding"`
	Word     uint16  `json:"word"`
	Value    float64 `json:"value"`
	Writable bool    `json:"writable"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.healthResponse())
}

// healthResponse reports "degraded" while the serial listener is down.
func (s *Server) healthResponse() HealthResponse {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		DeviceID:      s.deviceID,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.modbus != nil {
		resp.Serial = &SerialResponse{
			Port:       s.modbus.Port(),
			BaudRate:   s.modbus.BaudRate(),
			Listening:  s.modbus.Listening(),
			Exceptions: s.modbus.Exceptions(),
			BadFrames:  s.modbus.BadFrames(),
		}
		if !resp.Serial.Listening {
			resp.Status = "degraded"
		}
	}
	return resp
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) stateResponse() StateResponse {
	return StateResponse{
		DeviceID: s.deviceID,
		State:    s.state.Snapshot(),
		Stats:    s.handler.Stats(),
	}
}

// handleRegisters lists every mapped address with the word it reads as.
// All words come from one snapshot so float halves always match.
func (s *Server) handleRegisters(w http.ResponseWriter, _ *http.Request) {
	regs := s.handler.Registers()
	snapshot := s.state.Snapshot()

	mappings := regs.Mappings()
	out := make([]RegisterResponse, 0, len(mappings))
	for _, mp := range mappings {
		word := regs.Read(&snapshot, mp.Address, 1)[0]
		rr := RegisterResponse{
			Address:  mp.Address,
			Quantity: mp.Quantity.String(),
			Encoding: mp.Encoding.String(),
			Word:     word,
			Writable: mp.Quantity == device.QuantitySetpoint && mp.Encoding == device.EncodingScaledX10,
		}
		switch mp.Encoding {
		case device.EncodingScaledX10:
			rr.Value = device.DecodeScaled(word)
		case device.EncodingFloat32High, device.EncodingFloat32Low:
			if mp.Quantity == device.QuantityProcessValue {
				rr.Value = float64(snapshot.ProcessValue)
			} else {
				rr.Value = float64(snapshot.Setpoint)
			}
		}
		out = append(out, rr)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": s.deviceID,
		"registers": out,
	})
}

// handleSetpoint applies {"setpoint": N} through the same path as a
// Modbus write to Setpoint 1.
func (s *Server) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, "reading request body failed")
		return
	}

	if err := modbus.SetpointCommandHandler(s.handler)("api", body); err != nil {
		writeSetpointError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.stateResponse())
}
