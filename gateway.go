/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/quizbox/quiz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const (
	sendBuffer     = 64
	maxMessageSize = 64 * 1024
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
)

var metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "quiz_gateway_connections",
	Help: "Number of open websocket connections.",
})

// ClientMessage is an inbound request from a websocket client.
type ClientMessage struct {
	Type        string          `json:"type"` // "create", "join", "start", "answer", "ping"
	RequestID   string          `json:"requestId,omitempty"`
	Code        string          `json:"code,omitempty"`
	Name        string          `json:"name,omitempty"`
	ChoiceIndex *int            `json:"choiceIndex,omitempty"`
	Questions   []quiz.Question `json:"questions,omitempty"`
}

// ReplyMessage answers a create or join request.
type ReplyMessage struct {
	Type      string `json:"type"` // "reply"
	RequestID string `json:"requestId,omitempty"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// PongMessage answers a ping, confirming the connection round-trips.
type PongMessage struct {
	Type      string      `json:"type"` // "pong"
	RequestID string      `json:"requestId,omitempty"`
	Handle    quiz.Handle `json:"handle"`
}

// ConnectedMessage is the first frame on every connection.
type ConnectedMessage struct {
	Type   string      `json:"type"` // "connected"
	Handle quiz.Handle `json:"handle"`
}

type Client struct {
	handle quiz.Handle
	conn   *websocket.Conn
	send   chan []byte

	// guarded by Gateway.mu
	codes map[string]struct{}
}

// Gateway owns every websocket connection and fans session events out to the
// connections subscribed to each session code.
type Gateway struct {
	cfg      *Config
	store    *quiz.Store
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[quiz.Handle]*Client
	subs    map[string]map[quiz.Handle]*Client
}

// newGateway accepts upgrades only from origins the allow-list permits. Requests
// without an Origin header come from non-browser clients and are accepted.
func newGateway(cfg *Config, origins *cors.Cors, log zerolog.Logger) *Gateway {
	return &Gateway{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if r.Header.Get("Origin") == "" {
					return true
				}
				return origins.OriginAllowed(r)
			},
		},
		clients: make(map[quiz.Handle]*Client),
		subs:    make(map[string]map[quiz.Handle]*Client),
	}
}

// Broadcast delivers ev to every connection subscribed to code. A
// sessionEnded event also drops the code's subscriptions.
func (g *Gateway) Broadcast(code string, ev quiz.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		g.log.Error().Err(err).Str("code", code).Msg("marshal event")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.subs[code] {
		g.enqueueLocked(c, data)
	}

	if ev.Type == quiz.EventSessionEnded {
		for h := range g.subs[code] {
			if c, ok := g.clients[h]; ok {
				delete(c.codes, code)
			}
		}
		delete(g.subs, code)
	}

	g.log.Debug().
		Str("code", code).
		Str("event", string(ev.Type)).
		Msg("event broadcast")
}

// Send delivers ev to a single subscribed connection.
func (g *Gateway) Send(code string, to quiz.Handle, ev quiz.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		g.log.Error().Err(err).Str("code", code).Msg("marshal event")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.subs[code][to]; ok {
		g.enqueueLocked(c, data)
	}
}

// enqueueLocked never blocks. A connection whose buffer is full is dropped:
// its write pump closes the socket and the read pump then reports the
// disconnect to its sessions.
func (g *Gateway) enqueueLocked(c *Client, data []byte) {
	if _, ok := g.clients[c.handle]; !ok {
		return
	}

	select {
	case c.send <- data:
	default:
		g.log.Warn().Str("handle", string(c.handle)).Msg("send buffer full, closing connection")
		g.dropLocked(c)
	}
}

func (g *Gateway) dropLocked(c *Client) {
	if _, ok := g.clients[c.handle]; !ok {
		return
	}

	delete(g.clients, c.handle)
	close(c.send)
	metricConnections.Dec()
}

func (g *Gateway) register(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.clients[c.handle] = c
	metricConnections.Inc()
}

// subscribe reports whether c was not already subscribed to code.
func (g *Gateway) subscribe(c *Client, code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := c.codes[code]; ok {
		return false
	}

	if g.subs[code] == nil {
		g.subs[code] = make(map[quiz.Handle]*Client)
	}
	g.subs[code][c.handle] = c
	c.codes[code] = struct{}{}

	return true
}

func (g *Gateway) unsubscribe(c *Client, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.unsubscribeLocked(c, code)
}

func (g *Gateway) unsubscribeLocked(c *Client, code string) {
	delete(c.codes, code)

	if subs, ok := g.subs[code]; ok {
		delete(subs, c.handle)
		if len(subs) == 0 {
			delete(g.subs, code)
		}
	}
}

// disconnect drops c and returns the codes it was subscribed to.
func (g *Gateway) disconnect(c *Client) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	codes := make([]string, 0, len(c.codes))
	for code := range c.codes {
		codes = append(codes, code)
	}
	for _, code := range codes {
		g.unsubscribeLocked(c, code)
	}

	g.dropLocked(c)

	return codes
}

func (g *Gateway) reply(c *Client, msg ReplyMessage) {
	msg.Type = "reply"

	g.send(c, msg)
}

func (g *Gateway) send(c *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		g.log.Error().Err(err).Msg("marshal reply")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.enqueueLocked(c, data)
}

func (g *Gateway) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.log.Debug().Err(err).Str("remote", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		c := &Client{
			handle: quiz.Handle(uuid.NewString()),
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			codes:  make(map[string]struct{}),
		}

		g.register(c)

		logf(g.cfg, "GATEWAY: Connection %s opened from %s", c.handle, realIP(r))

		hello, _ := json.Marshal(ConnectedMessage{Type: "connected", Handle: c.handle})
		g.mu.Lock()
		g.enqueueLocked(c, hello)
		g.mu.Unlock()

		go c.writePump()
		g.readPump(c)
	}
}

func (g *Gateway) readPump(c *Client) {
	defer func() {
		for _, code := range g.disconnect(c) {
			if s, err := g.store.Get(code); err == nil {
				s.Leave(c.handle)
			}
		}
		_ = c.conn.Close()

		logf(g.cfg, "GATEWAY: Connection %s closed", c.handle)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.log.Warn().Err(err).Str("handle", string(c.handle)).Msg("unexpected websocket close")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.reply(c, ReplyMessage{OK: false, Reason: "invalid request"})
			continue
		}

		g.handle(c, msg)
	}
}

func (g *Gateway) handle(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "create":
		g.handleCreate(c, msg)
	case "join":
		g.handleJoin(c, msg)
	case "start":
		g.handleStart(c, msg)
	case "answer":
		g.handleAnswer(c, msg)
	case "ping":
		g.send(c, PongMessage{Type: "pong", RequestID: msg.RequestID, Handle: c.handle})
	default:
		g.reply(c, ReplyMessage{RequestID: msg.RequestID, OK: false, Reason: "invalid request"})
	}
}

func (g *Gateway) handleCreate(c *Client, msg ClientMessage) {
	questions := msg.Questions
	if len(questions) == 0 {
		questions = g.cfg.defaultQuestions
	}

	s, err := g.store.Create(c.handle, questions)
	if err != nil {
		g.reply(c, ReplyMessage{RequestID: msg.RequestID, OK: false, Reason: quiz.Reason(err)})
		return
	}

	g.subscribe(c, s.Code())

	logf(g.cfg, "GAMES: Created session %s with %d questions", s.Code(), len(questions))

	g.reply(c, ReplyMessage{RequestID: msg.RequestID, OK: true, Code: s.Code()})
}

func (g *Gateway) handleJoin(c *Client, msg ClientMessage) {
	s, err := g.store.Get(msg.Code)
	if err != nil {
		g.reply(c, ReplyMessage{RequestID: msg.RequestID, OK: false, Reason: quiz.Reason(err)})
		return
	}

	// Subscribe first so the joiner sees the roster update its join causes.
	added := g.subscribe(c, s.Code())

	if err := s.Join(c.handle, msg.Name); err != nil {
		if added {
			g.unsubscribe(c, s.Code())
		}
		g.reply(c, ReplyMessage{RequestID: msg.RequestID, OK: false, Reason: quiz.Reason(err)})
		return
	}

	logf(g.cfg, "GAMES: Player %q joined %s", msg.Name, s.Code())

	g.reply(c, ReplyMessage{RequestID: msg.RequestID, OK: true, Code: s.Code()})
}

func (g *Gateway) handleStart(c *Client, msg ClientMessage) {
	s, err := g.store.Get(msg.Code)
	if err != nil {
		return
	}

	if err := s.Start(c.handle); err != nil {
		g.log.Debug().Err(err).Str("code", msg.Code).Msg("start ignored")
	}
}

func (g *Gateway) handleAnswer(c *Client, msg ClientMessage) {
	if msg.ChoiceIndex == nil {
		return
	}

	s, err := g.store.Get(msg.Code)
	if err != nil {
		return
	}

	_ = s.SubmitAnswer(c.handle, *msg.ChoiceIndex)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeAll disconnects every client. Used on shutdown, after sessions have
// been ended so clients have already been told why.
func (g *Gateway) closeAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.clients {
		g.dropLocked(c)
	}
	g.subs = make(map[string]map[quiz.Handle]*Client)
}

// Len reports the number of open connections.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.clients)
}
