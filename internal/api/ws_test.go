package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cvrpsolver/internal/store"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var m wsMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestWSHandshakeAndPing(t *testing.T) {
	conn := dialWS(t, newTestServer(t, nil))
	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	if m := readMsg(t, conn); m.Type != "connection_ack" {
		t.Fatalf("got %s", m.Type)
	}
	_ = conn.WriteJSON(wsMessage{Type: "ping"})
	if m := readMsg(t, conn); m.Type != "pong" {
		t.Fatalf("got %s", m.Type)
	}
}

func TestWSSubscribeFinishedRun(t *testing.T) {
	s := newTestServer(t, nil)
	run := decode[store.Run](t, postSolve(t, s, "?wait=true", toyRequest()))
	conn := dialWS(t, s)
	_ = conn.WriteJSON(wsMessage{Type: "connection_init"})
	readMsg(t, conn)

	payload, _ := json.Marshal(subscribePayload{RunID: run.ID})
	_ = conn.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: payload})
	m := readMsg(t, conn)
	if m.Type != "next" || m.ID != "1" {
		t.Fatalf("got %+v", m)
	}
	var evt SSEEvent
	if err := json.Unmarshal(m.Payload, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != "run.status" || evt.Data["status"] != "succeeded" {
		t.Fatalf("unexpected snapshot %+v", evt)
	}
	if m := readMsg(t, conn); m.Type != "complete" || m.ID != "1" {
		t.Fatalf("got %+v", m)
	}
}

func TestWSSubscribeUnknownRun(t *testing.T) {
	conn := dialWS(t, newTestServer(t, nil))
	_ = conn.WriteJSON(wsMessage{Type: "connection_init"})
	readMsg(t, conn)
	_ = conn.WriteJSON(wsMessage{Type: "subscribe", ID: "x", Payload: []byte(`{"runId":"missing"}`)})
	if m := readMsg(t, conn); m.Type != "error" {
		t.Fatalf("got %+v", m)
	}
	if m := readMsg(t, conn); m.Type != "complete" {
		t.Fatalf("got %+v", m)
	}
}
