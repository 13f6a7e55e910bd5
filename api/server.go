package api

import (
	"encoding/json"
	"net/http"

	"whatsapp-relay-bot/utils"
	"whatsapp-relay-bot/whatsapp"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the local command API. It only reads the published handle; it
// never drives restarts.
type Server struct {
	router  chi.Router
	current func() (whatsapp.Handle, bool)
	log     zerolog.Logger
}

type sendRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func NewServer(current func() (whatsapp.Handle, bool), log zerolog.Logger) *Server {
	s := &Server{
		current: current,
		log:     log.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Post("/send-message", s.handleSendMessage)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid JSON body"})
		return
	}
	if req.Number == "" || req.Message == "" {
		utils.SendsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusBadRequest, response{Message: "number and message are required"})
		return
	}

	handle, ok := s.current()
	if !ok {
		utils.SendsTotal.WithLabelValues("not_ready").Inc()
		writeJSON(w, http.StatusServiceUnavailable, response{
			Message: "WhatsApp client is not ready, scan the pairing code first",
		})
		return
	}

	to := whatsapp.CanonicalAddress(req.Number)
	if err := handle.SendText(r.Context(), to, req.Message); err != nil {
		utils.SendsTotal.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Str("to", to).Msg("Send failed")
		writeJSON(w, http.StatusInternalServerError, response{Message: err.Error()})
		return
	}

	utils.SendsTotal.WithLabelValues("sent").Inc()
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Message sent",
		Data:    map[string]string{"to": to},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	handle, ok := s.current()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"state": "restarting"})
		return
	}
	state, err := handle.State(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"state": string(whatsapp.StateUnknown)})
		return
	}
	status := http.StatusOK
	if state != whatsapp.StateReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"state": string(state)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
