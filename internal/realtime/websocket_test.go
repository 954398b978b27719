package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type gatewayStub struct {
	upgrader websocket.Upgrader

	control  chan controlMessage
	outgoing chan envelope
	closeNow chan struct{}
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{
		control:  make(chan controlMessage, 4),
		outgoing: make(chan envelope, 4),
		closeNow: make(chan struct{}),
	}
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	go func() {
		for {
			var ctrl controlMessage
			if err := conn.ReadJSON(&ctrl); err != nil {
				return
			}
			g.control <- ctrl
		}
	}()

	for {
		select {
		case env := <-g.outgoing:
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-g.closeNow:
			return
		}
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketProviderSubscribesAndDelivers(t *testing.T) {
	gateway := newGatewayStub()
	server := httptest.NewServer(gateway)
	defer server.Close()

	provider := NewWebSocketProvider(wsURL(server), "test-token", zap.NewNop())

	events := make(chan Event, 4)
	sub, err := provider.Subscribe(context.Background(), TopicIncidentChanges, func(event Event) {
		events <- event
	}, func(error) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case ctrl := <-gateway.control:
		require.Equal(t, "subscribe", ctrl.Action)
		require.Equal(t, []string{TopicIncidentChanges}, ctrl.Streams)
	case <-time.After(time.Second):
		t.Fatal("subscribe control frame never arrived")
	}

	payload, err := json.Marshal(Event{ID: "d1", Type: EventInsert, New: json.RawMessage(`{"id":"inc-1"}`)})
	require.NoError(t, err)
	gateway.outgoing <- envelope{Stream: TopicIncidentChanges, Event: "change", Data: payload}

	select {
	case event := <-events:
		require.Equal(t, "d1", event.ID)
		require.Equal(t, EventInsert, event.Type)
		require.Equal(t, TopicIncidentChanges, event.Topic, "topic filled from the stream envelope")
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestWebSocketProviderReportsTransportFailure(t *testing.T) {
	gateway := newGatewayStub()
	server := httptest.NewServer(gateway)
	defer server.Close()

	provider := NewWebSocketProvider(wsURL(server), "", zap.NewNop())

	failures := make(chan error, 1)
	sub, err := provider.Subscribe(context.Background(), TopicUrgentAlerts, func(Event) {}, func(err error) {
		failures <- err
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	close(gateway.closeNow)

	select {
	case err := <-failures:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("transport failure never reported")
	}
}

func TestWebSocketProviderUnsubscribeIsQuiet(t *testing.T) {
	gateway := newGatewayStub()
	server := httptest.NewServer(gateway)
	defer server.Close()

	provider := NewWebSocketProvider(wsURL(server), "", zap.NewNop())

	failures := make(chan error, 1)
	sub, err := provider.Subscribe(context.Background(), TopicIncidentChanges, func(Event) {}, func(err error) {
		failures <- err
	})
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe(), "repeat unsubscribe is a no-op")

	select {
	case err := <-failures:
		t.Fatalf("deliberate close must not surface as a transport error: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebSocketProviderDialFailure(t *testing.T) {
	provider := NewWebSocketProvider("ws://127.0.0.1:1/realtime", "", zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := provider.Subscribe(ctx, TopicIncidentChanges, func(Event) {}, nil)
	require.Error(t, err)
}
