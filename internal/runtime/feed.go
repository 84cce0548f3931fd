package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/atcscribe/atcscribe-core/internal/bus"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedSendBuffer   = 64
)

// feedSubjects are the bus subjects mirrored to websocket clients.
var feedSubjects = []string{
	protocol.SubjectEngineState,
	protocol.SubjectTranscriptFinal,
	protocol.SubjectTranscriptPartial,
	protocol.SubjectDeviceState,
	protocol.SubjectDeviceList,
	protocol.SubjectDownloadProgress,
	protocol.SubjectHistorySaved,
}

// feedEvent is the envelope written to websocket clients: the bus subject
// plus the payload exactly as it was published.
type feedEvent struct {
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload"`
}

// Feed mirrors runtime bus traffic to websocket subscribers. A slow
// client loses its oldest queued events rather than stalling the bus
// callback or the other clients.
type Feed struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	subs    []*nats.Subscription
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewFeed(log *slog.Logger) *Feed {
	return &Feed{
		log: log.With(slog.String("component", "feed")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The daemon serves local frontends only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// Attach subscribes the feed to the bus. Safe to skip when the runtime
// starts without a bus connection.
func (f *Feed) Attach(busClient *bus.Client) error {
	if busClient == nil || busClient.Conn() == nil {
		return nil
	}
	for _, subject := range feedSubjects {
		subject := subject
		sub, err := busClient.Conn().Subscribe(subject, func(msg *nats.Msg) {
			f.broadcast(subject, msg.Data)
		})
		if err != nil {
			return err
		}
		f.subs = append(f.subs, sub)
	}
	return nil
}

// ServeHTTP upgrades the request and streams feed events until the
// client goes away.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan []byte, feedSendBuffer),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	f.clients[client] = struct{}{}
	f.mu.Unlock()

	go f.writeLoop(client)
	f.readLoop(client)
}

func (f *Feed) readLoop(client *feedClient) {
	defer f.drop(client)
	for {
		// Clients never send payloads; reading only detects closure.
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writeLoop(client *feedClient) {
	defer f.drop(client)
	for msg := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = client.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
}

func (f *Feed) broadcast(subject string, payload []byte) {
	msg, err := json.Marshal(feedEvent{Subject: subject, Payload: payload})
	if err != nil {
		f.log.Warn("failed to encode feed event", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		select {
		case client.send <- msg:
		default:
			// Full buffer: shed the oldest event and retry once.
			select {
			case <-client.send:
			default:
			}
			select {
			case client.send <- msg:
			default:
			}
			f.log.Warn("feed client lagging, dropped event", slog.String("subject", subject))
		}
	}
}

func (f *Feed) drop(client *feedClient) {
	f.mu.Lock()
	_, present := f.clients[client]
	delete(f.clients, client)
	f.mu.Unlock()

	client.once.Do(func() { close(client.send) })
	_ = client.conn.Close()
	if present {
		f.log.Debug("feed client disconnected")
	}
}

// Close drains the bus subscriptions and disconnects every client.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	subs := f.subs
	f.subs = nil
	clients := make([]*feedClient, 0, len(f.clients))
	for client := range f.clients {
		clients = append(clients, client)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Drain()
	}
	for _, client := range clients {
		f.drop(client)
	}
}
