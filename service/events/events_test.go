package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/config"
)

func TestHubFansOutEvents(t *testing.T) {
	hub, err := NewHub(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer hub.Close()

	url := "ws://" + hub.Addr() + "/events"
	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()
		conns = append(conns, conn)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("%d clients registered", hub.Clients())
		}
		time.Sleep(10 * time.Millisecond)
	}

	sent := model.Event{Type: model.EventBoxCount, Device: "loongson-camera", Count: 3, Timestamp: 42}
	if err := hub.Publish(sent); err != nil {
		t.Fatal(err)
	}

	for i, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d: %v", i, err)
		}
		var got model.Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got != sent {
			t.Fatalf("client %d got %+v", i, got)
		}
	}
}

func TestHubForgetsDisconnectedClients(t *testing.T) {
	hub, err := NewHub(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+hub.Addr()+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := hub.Publish(model.Event{Type: model.EventFace, Label: "alice"}); err != nil {
		t.Fatal(err)
	}
}

func TestNewSelectsSink(t *testing.T) {
	svc, err := New(context.Background(), config.EventsParameters{Sink: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Publish(model.Event{Type: model.EventSession}); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), config.EventsParameters{Sink: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown sink accepted")
	}
}

func TestMQTTPublishWithoutConnection(t *testing.T) {
	e := NewMQTT(config.EventsParameters{Broker: "127.0.0.1:1", Topic: "t"})
	if err := e.Publish(model.Event{Type: model.EventBoxCount}); err == nil {
		t.Fatal("published while disconnected")
	}
	if _, errs := e.Counts(); errs != 1 {
		t.Fatalf("errors %d", errs)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
}
