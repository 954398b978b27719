package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
)

// envelope is the multiplexed frame the event gateway sends on a stream.
type envelope struct {
	Stream string          `json:"stream"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// WebSocketProvider subscribes to topics over a single-stream websocket per
// subscription. Each Subscribe call dials its own connection so a transport
// failure on one topic never disturbs another.
type WebSocketProvider struct {
	url    string
	token  string
	dialer *websocket.Dialer
	log    *zap.Logger
}

// NewWebSocketProvider constructs a provider targeting the gateway URL. token
// is optional and sent as a bearer header when present.
func NewWebSocketProvider(url, token string, log *zap.Logger) *WebSocketProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketProvider{
		url:    url,
		token:  token,
		dialer: websocket.DefaultDialer,
		log:    log,
	}
}

// Subscribe dials the gateway, requests the topic stream and starts the read
// and ping pumps. It returns once the subscribe control frame is on the wire.
func (p *WebSocketProvider) Subscribe(ctx context.Context, topic string, handler Handler, onError func(error)) (Subscription, error) {
	header := http.Header{}
	if p.token != "" {
		header.Set("Authorization", "Bearer "+p.token)
	}

	conn, _, err := p.dialer.DialContext(ctx, p.url, header)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial %s: %w", p.url, err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(controlMessage{Action: "subscribe", Streams: []string{topic}}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", topic, err)
	}

	sub := &wsSubscription{
		conn:  conn,
		topic: topic,
		done:  make(chan struct{}),
		log:   p.log.With(zap.String("topic", topic)),
	}
	go sub.readPump(handler, onError)
	go sub.pingPump()
	return sub, nil
}

type wsSubscription struct {
	conn  *websocket.Conn
	topic string
	done  chan struct{}
	once  sync.Once
	log   *zap.Logger

	writeMu sync.Mutex
}

// Unsubscribe sends a best-effort unsubscribe frame and closes the socket.
func (s *wsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{s.topic}})
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *wsSubscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *wsSubscription) readPump(handler Handler, onError func(error)) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed() {
				return
			}
			_ = s.Unsubscribe()
			if onError != nil {
				onError(err)
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.log.Warn("malformed frame dropped", zap.Error(err))
			continue
		}
		if env.Event == "pong" {
			continue
		}

		var event Event
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &event); err != nil {
				s.log.Warn("malformed event payload dropped", zap.Error(err))
				continue
			}
		}
		if event.Topic == "" {
			event.Topic = env.Stream
		}
		if event.Type == "" {
			event.Type = env.Event
		}
		handler(event)
	}
}

func (s *wsSubscription) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
