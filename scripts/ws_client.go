// Package main submits a random instance to a running API and prints its
// run events from the WebSocket endpoint.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Random 30 customer instance around a central depot
	n := 31
	coords := make([][2]float64, n)
	demand := make([]int, n)
	coords[0] = [2]float64{50, 50}
	for i := 1; i < n; i++ {
		coords[i] = [2]float64{rand.Float64() * 100, rand.Float64() * 100}
		demand[i] = 1 + rand.Intn(10)
	}
	body, _ := json.Marshal(map[string]any{
		"name":             "ws-demo",
		"dimension":        n,
		"capacity":         40,
		"demand":           demand,
		"nodeCoord":        coords,
		"timeLimitSeconds": 10,
	})
	resp, err := http.Post(base+"/v1/solve", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var accepted struct {
		RunID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		log.Fatal(err)
	}
	if accepted.RunID == "" {
		log.Fatalf("solve rejected: %s", resp.Status)
	}
	log.Printf("Run ID: %s", accepted.RunID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"runId": accepted.RunID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
			if m.Type == "complete" {
				return
			}
		}
	}()

	select {
	case <-time.After(30 * time.Second):
		log.Print("timed out waiting for the run to finish")
	case <-done:
	}
}
