package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cvrpsolver/internal/model"
)

// Run events over WebSocket, using the message envelope of graphql-transport-ws
// without the GraphQL layer: subscribe carries {"runId": "..."}.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	RunID string `json:"runId"`
}

// WSHandler handles /v1/ws
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		runID string
		ch    chan SSEEvent
	}
	var (
		mu   sync.Mutex // guards subs and conn writes
		subs = map[string]sub{}
		done = make(chan struct{})
	)
	defer close(done)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	write := func(v any) error {
		mu.Lock()
		defer mu.Unlock()
		return conn.WriteJSON(v)
	}
	unsubscribe := func(id string) {
		mu.Lock()
		s0, ok := subs[id]
		delete(subs, id)
		mu.Unlock()
		if ok {
			s.Broker.Unsubscribe(s0.runID, s0.ch)
		}
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if err := write(wsMessage{Type: "ping"}); err != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			if pl.RunID == "" || msg.ID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"id and runId required"}`)})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			// subscribe before reading the run so a completion in between is not lost
			ch := s.Broker.Subscribe(pl.RunID)
			run, err := s.Store.GetRun(r.Context(), pl.RunID)
			if err != nil {
				s.Broker.Unsubscribe(pl.RunID, ch)
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"run not found"}`)})
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			mu.Lock()
			subs[msg.ID] = sub{runID: pl.RunID, ch: ch}
			mu.Unlock()
			go func(id string, c chan SSEEvent, status string, finished bool) {
				snapshot, _ := json.Marshal(map[string]any{"type": "run.status", "data": map[string]any{"runId": run.ID, "status": status}})
				_ = write(wsMessage{Type: "next", ID: id, Payload: snapshot})
				if finished {
					unsubscribe(id)
				}
				for evt := range c {
					payload, _ := json.Marshal(evt)
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
					if evt.Type == model.EventRunCompleted || evt.Type == model.EventRunFailed {
						unsubscribe(id)
					}
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, string(run.Status), run.Status.Done())
		case "complete":
			unsubscribe(msg.ID)
		default:
			// ignore
		}
	}
	mu.Lock()
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	mu.Unlock()
	for _, id := range ids {
		unsubscribe(id)
	}
}
