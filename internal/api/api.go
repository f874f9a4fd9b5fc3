package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/avr-controller/internal/model"
	"github.com/thatsimonsguy/avr-controller/internal/receiver"
)

type Receiver interface {
	GetFullState(ctx context.Context) (model.ReceiverState, error)
	SetPowerState(ctx context.Context, on bool) (bool, error)
	SetMuteState(ctx context.Context, muted bool) (bool, error)
	SetVolumePercent(ctx context.Context, percent float64) (float64, error)
	SetVolumeDB(ctx context.Context, db float64) (float64, error)
	SetInput(ctx context.Context, input model.Input) (model.Input, error)
}

type Server struct {
	receiver  Receiver
	maxVolume float64
}

type PowerRequest struct {
	On *bool `json:"on"`
}

type MuteRequest struct {
	Muted *bool `json:"muted"`
}

// VolumeRequest carries exactly one of Percent or DB.
type VolumeRequest struct {
	Percent *float64 `json:"percent"`
	DB      *float64 `json:"db"`
}

type InputRequest struct {
	Input string `json:"input"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(r Receiver, maxVolume float64) *Server {
	return &Server{receiver: r, maxVolume: maxVolume}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/receiver", s.handleReceiver)
	mux.HandleFunc("/api/receiver/", s.handleReceiverOperations)
	return mux
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleReceiver(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	state, err := s.receiver.GetFullState(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to get receiver state")
		s.writeReceiverError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleReceiverOperations(w http.ResponseWriter, r *http.Request) {
	operation := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/receiver/"), "/")

	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch operation {
	case "power":
		s.setPower(w, r)
	case "mute":
		s.setMute(w, r)
	case "volume":
		s.setVolume(w, r)
	case "input":
		s.setInput(w, r)
	default:
		s.writeError(w, http.StatusNotFound, "Unknown operation")
	}
}

func (s *Server) setPower(w http.ResponseWriter, r *http.Request) {
	var req PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload, expected {\"on\": bool}")
		return
	}

	on, err := s.receiver.SetPowerState(r.Context(), *req.On)
	if err != nil {
		log.Error().Err(err).Bool("on", *req.On).Msg("Failed to set power state")
		s.writeReceiverError(w, err)
		return
	}

	log.Info().Bool("on", on).Msg("Power state updated via API")
	s.writeJSON(w, http.StatusOK, map[string]bool{"on": on})
}

func (s *Server) setMute(w http.ResponseWriter, r *http.Request) {
	var req MuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Muted == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload, expected {\"muted\": bool}")
		return
	}

	muted, err := s.receiver.SetMuteState(r.Context(), *req.Muted)
	if err != nil {
		log.Error().Err(err).Bool("muted", *req.Muted).Msg("Failed to set mute state")
		s.writeReceiverError(w, err)
		return
	}

	log.Info().Bool("muted", muted).Msg("Mute state updated via API")
	s.writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

func (s *Server) setVolume(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Percent == nil) == (req.DB == nil) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload, expected {\"percent\": number} or {\"db\": number}")
		return
	}

	if req.Percent != nil {
		if *req.Percent < 0 || *req.Percent > s.maxVolume {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid volume. Must be between 0%% and %.0f%%", s.maxVolume))
			return
		}
		pct, err := s.receiver.SetVolumePercent(r.Context(), *req.Percent)
		if err != nil {
			log.Error().Err(err).Float64("percent", *req.Percent).Msg("Failed to set volume")
			s.writeReceiverError(w, err)
			return
		}
		log.Info().Float64("percent", pct).Msg("Volume updated via API")
		s.writeJSON(w, http.StatusOK, map[string]float64{"percent": pct})
		return
	}

	maxDB := receiver.PercentToDB(s.maxVolume)
	if maxDB < receiver.MinVolumeDB {
		// A cap below the lowest dB step leaves only the mute floor, reachable by percent.
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid volume. Maximum volume is %.0f%%, set volume by percent instead", s.maxVolume))
		return
	}
	if *req.DB < receiver.MinVolumeDB || *req.DB > maxDB {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid volume. Must be between %.1f dB and %.1f dB", receiver.MinVolumeDB, maxDB))
		return
	}
	db, err := s.receiver.SetVolumeDB(r.Context(), *req.DB)
	if err != nil {
		log.Error().Err(err).Float64("db", *req.DB).Msg("Failed to set volume")
		s.writeReceiverError(w, err)
		return
	}
	log.Info().Float64("db", db).Msg("Volume updated via API")
	s.writeJSON(w, http.StatusOK, map[string]float64{"db": db})
}

func (s *Server) setInput(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	input, ok := model.LookupInput(req.Input)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid input %q", req.Input))
		return
	}

	current, err := s.receiver.SetInput(r.Context(), input)
	if err != nil {
		log.Error().Err(err).Str("input", string(input)).Msg("Failed to set input")
		s.writeReceiverError(w, err)
		return
	}

	log.Info().Str("input", string(current)).Msg("Input updated via API")
	s.writeJSON(w, http.StatusOK, map[string]string{"input": string(current)})
}

// writeReceiverError maps client errors onto HTTP statuses: rejected requests are
// the caller's fault, a misbehaving receiver is a bad gateway.
func (s *Server) writeReceiverError(w http.ResponseWriter, err error) {
	var statusErr *receiver.StatusError
	switch {
	case errors.Is(err, receiver.ErrInvalidInput), errors.Is(err, receiver.ErrPowerOnUnsupported):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &statusErr), errors.Is(err, receiver.ErrUnexpectedPage):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
