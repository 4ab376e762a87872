// Package gateway adapts bus subscriptions into Server-Sent Event streams.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"pumpfeed/internal/bus"
	"pumpfeed/internal/observability"
)

// Server serves the event stream and health endpoints. It holds no business
// logic; it is the only component that touches transport framing.
type Server struct {
	bus    *bus.Bus
	logger *log.Logger
}

// NewServer creates a gateway server over the given bus.
func NewServer(b *bus.Bus, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{bus: b, logger: logger}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// handleHealth reports process liveness only; it does not reflect upstream
// connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleEvents attaches one bus subscription to the connection and streams
// each delivered event as an SSE frame until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Attach before the response goes out: once the client sees headers,
	// its subscription is live.
	sub := s.bus.Subscribe()
	observability.SubscriberConnected()
	defer observability.SubscriberDisconnected()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		event, err := sub.Next(ctx)
		if err != nil {
			var lagErr *bus.LagError
			if errors.As(err, &lagErr) {
				// Dropped history is not reconstructed; resume from the
				// oldest retained event.
				observability.RecordSubscriberLag(lagErr.Missed)
				s.logger.Printf("subscriber %s lagged, %d events dropped", r.RemoteAddr, lagErr.Missed)
				continue
			}
			// Client gone or bus closed; either way this stream is done.
			return
		}

		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Printf("marshal event: %v", err)
			continue
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
