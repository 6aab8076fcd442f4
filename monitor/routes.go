package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const eventInterval = time.Second

type healthResponse struct {
	Status    string `json:"status"`
	Role      string `json:"role"`
	Interface string `json:"interface"`
}

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /stats", s.statsHandler)

	mux.HandleFunc("/events", s.eventsHandler)

	return mux
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, healthResponse{
		Status:    "ok",
		Role:      s.role,
		Interface: s.iface,
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.stats.Snapshot())
}

// eventsHandler streams a stats snapshot every second until the client
// goes away.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, nil)
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "server closing websocket")

	ctx := r.Context()
	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		b, err := json.Marshal(s.stats.Snapshot())
		if err != nil {
			log.Printf("error marshaling stats snapshot: %v", err)
			return
		}
		if err := socket.Write(ctx, websocket.MessageText, b); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	jsonResp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(jsonResp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
