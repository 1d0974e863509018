package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/pkg/contracts/events"
)

const writeWait = 5 * time.Second

// Metrics do hub; o main registra com prometheus.MustRegister
type Metrics struct {
	Connections prometheus.Gauge
	Forwarded   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{Name: "ws_gateway_connections", Help: "conexões WebSocket abertas"}),
		Forwarded:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ws_gateway_forwarded_total", Help: "mensagens repassadas aos clientes"}, []string{"event"}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Connections, m.Forwarded}
}

// client serializa as escritas: *websocket.Conn não aceita writers concorrentes
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(b)
}

// Hub gerencia conexões WebSocket e assinaturas por tópico
// subs: mapeia o tópico para o conjunto de clientes inscritos
type Hub struct {
	log      *zap.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria o hub com a política de origem informada
func NewHub(log *zap.Logger, m *Metrics, allowOrigin func(r *http.Request) bool) *Hub {
	if m == nil {
		m = NewMetrics()
	}
	return &Hub{
		log:      log,
		metrics:  m,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão
// Um cliente pode assinar vários tópicos; ao desconectar sai de todos
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	h.metrics.Connections.Inc()
	defer func() {
		h.drop(c)
		h.metrics.Connections.Dec()
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case MsgSubscribe:
			if msg.Topic == "" {
				_ = c.writeJSON(ControlMsg{Type: MsgError, Error: "topic required"})
				continue
			}
			h.subscribe(c, msg.Topic)
			_ = c.writeJSON(ControlMsg{Type: MsgSubscribed, Topic: msg.Topic})
		case MsgUnsubscribe:
			h.unsubscribe(c, msg.Topic)
			_ = c.writeJSON(ControlMsg{Type: MsgUnsubscribed, Topic: msg.Topic})
		case MsgPing:
			_ = c.writeJSON(ControlMsg{Type: MsgPong})
		default:
			_ = c.writeJSON(ControlMsg{Type: MsgError, Error: "unknown message type"})
		}
	}
}

func (h *Hub) subscribe(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[*client]struct{})
	}
	h.subs[topic][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Subscribers retorna quantos clientes assinam o tópico
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Broadcast envia o envelope para todos os clientes inscritos no tópico
func (h *Hub) Broadcast(env events.Envelope) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[env.Topic]))
	for c := range h.subs[env.Topic] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(env)
	if err != nil {
		h.log.Warn("broadcast marshal failed", zap.String("event", env.Event), zap.Error(err))
		return
	}
	for _, c := range targets {
		if err := c.write(b); err != nil {
			// o loop de leitura da conexão remove o cliente
			h.log.Debug("broadcast write failed", zap.Error(err))
			continue
		}
		h.metrics.Forwarded.WithLabelValues(env.Event).Inc()
	}
}
