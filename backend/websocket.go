// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Hubs without clients stop after this long.
	defaultHubIdle = 5 * time.Minute
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrExists          = errors.New("already exists")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types for WebSocket communication
const (
	MsgTypeJoin    = "JOIN"
	MsgTypeView    = "VIEW"
	MsgTypeEvent   = "EVENT"
	MsgTypeDeleted = "DELETED"
	MsgTypeError   = "ERROR"
	MsgTypePing    = "PING"
	MsgTypePong    = "PONG"
)

// Message is a live-feed message.
type Message struct {
	Type    string             `json:"type"`
	MatchId string             `json:"matchId,omitempty"`
	View    *scoring.MatchView `json:"view,omitempty"`
	Event   *scoring.Event     `json:"event,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// HubRequest types
const (
	ReqTypeWSJoin     = "WS_JOIN"
	ReqTypeHTTPLoad   = "HTTP_LOAD"
	ReqTypeHTTPCreate = "HTTP_CREATE"
	ReqTypeHTTPAction = "HTTP_ACTION"
	ReqTypeHTTPDelete = "HTTP_DELETE"
	ReqTypeBroadcast  = "BROADCAST"
)

// HubRequest is one unit of work for a match hub.
type HubRequest struct {
	Type   string
	Client *wsClient        // WS_JOIN
	UserId string           // HTTP requests
	Action Action           // HTTP_ACTION
	Match  *StoredMatch     // HTTP_CREATE, BROADCAST
	Events []scoring.Event  // BROADCAST
	Reply  chan HubResponse // HTTP requests
}

// HubResponse is the hub's answer to an HTTP request.
type HubResponse struct {
	Match   *StoredMatch
	Changed bool
	Events  []scoring.Event
	Error   error
}

// Hub owns one match. All reads and writes of the match go through its run
// loop, one request at a time.
type Hub struct {
	matchId string

	clients    map[*wsClient]bool
	requests   chan HubRequest
	register   chan *wsClient
	unregister chan *wsClient

	// match is the last committed state, nil until loaded or created.
	match *StoredMatch

	hm *HubManager
}

func newHub(id string, hm *HubManager) *Hub {
	return &Hub{
		matchId:    id,
		requests:   make(chan HubRequest, hubRequestBacklog),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		clients:    make(map[*wsClient]bool),
		hm:         hm,
	}
}

func (h *Hub) run() {
	h.hm.metrics.hubStarted()
	defer h.hm.metrics.hubStopped()

	idleTimer := time.NewTicker(h.hm.idleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.hm.metrics.clientConnected()
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.hm.metrics.clientDisconnected()
			}
		case req := <-h.requests:
			start := time.Now()
			h.handle(req)
			h.hm.metrics.ObserveHubRequest(req.Type, time.Since(start))
		case <-idleTimer.C:
			if len(h.clients) == 0 && h.hm.removeIdle(h) {
				return
			}
		}
	}
}

func (h *Hub) handle(req HubRequest) {
	if err := h.ensureLoaded(); err != nil {
		log.Printf("Hub: Error loading match %s: %v", h.matchId, err)
		h.reply(req, HubResponse{Error: err})
		if req.Client != nil {
			req.Client.sendJSON(Message{Type: MsgTypeError, Error: "Server error loading match"})
		}
		return
	}

	switch req.Type {
	case ReqTypeWSJoin:
		if req.Client != nil && h.clients[req.Client] {
			h.handleWSJoin(req.Client)
		}
	case ReqTypeHTTPLoad:
		if h.match == nil || h.match.Deleted {
			h.reply(req, HubResponse{Error: os.ErrNotExist})
			return
		}
		h.reply(req, HubResponse{Match: h.match.Clone()})
	case ReqTypeHTTPCreate:
		h.reply(req, h.handleCreate(req))
	case ReqTypeHTTPAction:
		h.reply(req, h.handleAction(req))
	case ReqTypeHTTPDelete:
		h.reply(req, h.handleDelete(req))
	case ReqTypeBroadcast:
		h.handleBroadcast(req.Match, req.Events)
	}
}

func (h *Hub) reply(req HubRequest, resp HubResponse) {
	if req.Reply != nil {
		req.Reply <- resp
	}
}

// ensureLoaded reads the match from the store the first time it is needed.
// A missing match is not an error: it may be about to be created.
func (h *Hub) ensureLoaded() error {
	if h.match != nil {
		return nil
	}
	sm, err := h.hm.ms.LoadMatch(h.matchId)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	h.match = sm
	return nil
}

func (h *Hub) handleWSJoin(c *wsClient) {
	if h.match == nil || h.match.Deleted {
		c.sendJSON(Message{Type: MsgTypeError, MatchId: h.matchId, Error: "Match not found"})
		return
	}
	if GetMatchAccess(c.userId, h.match, h.hm.ts) < AccessRead {
		log.Printf("Forbidden: User %s attempted to join match %s without permissions", maskEmail(c.userId), h.matchId)
		c.sendJSON(Message{Type: MsgTypeError, MatchId: h.matchId, Error: "Forbidden: You do not have access to this match"})
		return
	}
	view := h.match.View()
	c.sendJSON(Message{Type: MsgTypeView, MatchId: h.matchId, View: &view})
}

func (h *Hub) handleCreate(req HubRequest) HubResponse {
	if h.match != nil {
		return HubResponse{Error: fmt.Errorf("match %s: %w", h.matchId, ErrExists)}
	}
	sm := req.Match
	if rm := h.hm.raftManager(); rm != nil {
		if _, err := rm.Propose(RaftCommand{Type: CmdSaveMatch, ID: sm.ID, Match: sm}); err != nil {
			return HubResponse{Error: err}
		}
		// The FSM pushes the committed match back through a broadcast.
		return HubResponse{Match: sm.Clone(), Changed: true}
	}
	if err := h.hm.ms.SaveMatch(sm); err != nil {
		return HubResponse{Error: fmt.Errorf("save match: %w", err)}
	}
	h.match = sm
	return HubResponse{Match: sm.Clone(), Changed: true}
}

func (h *Hub) handleAction(req HubRequest) HubResponse {
	if h.match == nil || h.match.Deleted {
		return HubResponse{Error: os.ErrNotExist}
	}
	if err := ValidateAction(req.Action); err != nil {
		h.hm.metrics.ObserveAction(req.Action.Type, false, err)
		return HubResponse{Error: err}
	}
	if GetMatchAccess(req.UserId, h.match, h.hm.ts) < AccessWrite {
		log.Printf("Forbidden: User %s attempted %s on match %s", maskEmail(req.UserId), req.Action.Type, h.matchId)
		if req.UserId == "" {
			return HubResponse{Error: ErrUnauthenticated}
		}
		return HubResponse{Error: ErrForbidden}
	}

	if rm := h.hm.raftManager(); rm != nil {
		res, err := rm.Propose(RaftCommand{Type: CmdApplyAction, ID: h.matchId, Action: &req.Action, UserID: req.UserId})
		if err != nil {
			if !errors.Is(err, ErrNotLeader) {
				h.hm.metrics.ObserveAction(req.Action.Type, false, err)
			}
			return HubResponse{Error: err}
		}
		applied, _ := res.(*ApplyResult)
		if applied == nil {
			applied = &ApplyResult{}
		}
		h.hm.metrics.ObserveAction(req.Action.Type, applied.Changed, nil)
		if sm, err := h.hm.ms.LoadMatch(h.matchId); err == nil {
			h.match = sm
		}
		return HubResponse{Match: h.match.Clone(), Changed: applied.Changed, Events: applied.Events}
	}

	clone := h.match.Clone()
	changed, events, err := ApplyAction(clone, req.Action)
	h.hm.metrics.ObserveAction(req.Action.Type, changed, err)
	if err != nil {
		return HubResponse{Error: err}
	}
	if !changed {
		return HubResponse{Match: h.match.Clone()}
	}
	if err := h.hm.ms.SaveMatch(clone); err != nil {
		return HubResponse{Error: fmt.Errorf("save match: %w", err)}
	}
	h.match = clone
	h.hm.metrics.ObserveEvents(events)
	h.publish(events)
	return HubResponse{Match: clone.Clone(), Changed: true, Events: events}
}

func (h *Hub) handleDelete(req HubRequest) HubResponse {
	if h.match == nil || h.match.Deleted {
		return HubResponse{Error: os.ErrNotExist}
	}
	if GetMatchAccess(req.UserId, h.match, h.hm.ts) < AccessAdmin {
		return HubResponse{Error: ErrForbidden}
	}
	if rm := h.hm.raftManager(); rm != nil {
		if _, err := rm.Propose(RaftCommand{Type: CmdDeleteMatch, ID: h.matchId}); err != nil {
			return HubResponse{Error: err}
		}
		return HubResponse{Changed: true}
	}
	if err := h.hm.ms.DeleteMatch(h.matchId); err != nil {
		return HubResponse{Error: fmt.Errorf("delete match: %w", err)}
	}
	sm, err := h.hm.ms.LoadMatch(h.matchId)
	if err != nil {
		return HubResponse{Error: err}
	}
	h.match = sm
	h.broadcast(Message{Type: MsgTypeDeleted, MatchId: h.matchId})
	return HubResponse{Changed: true}
}

// handleBroadcast installs a state committed through raft and pushes it to
// the live feed.
func (h *Hub) handleBroadcast(sm *StoredMatch, events []scoring.Event) {
	if sm == nil {
		return
	}
	h.match = sm
	if sm.Deleted {
		h.broadcast(Message{Type: MsgTypeDeleted, MatchId: h.matchId})
		return
	}
	h.publish(events)
}

// publish sends the new scoreboard followed by the events that produced it.
func (h *Hub) publish(events []scoring.Event) {
	if len(h.clients) == 0 {
		return
	}
	view := h.match.View()
	h.broadcast(Message{Type: MsgTypeView, MatchId: h.matchId, View: &view})
	for i := range events {
		h.broadcast(Message{Type: MsgTypeEvent, MatchId: h.matchId, Event: &events[i]})
	}
}

func (h *Hub) broadcast(msg Message) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			close(client.send)
			delete(h.clients, client)
			h.hm.metrics.clientDisconnected()
		}
	}
}

// HubManager manages one hub per active match.
type HubManager struct {
	mu   sync.Mutex
	hubs map[string]*Hub
	rm   *RaftManager

	ms          *MatchStore
	ts          *TeamStore
	metrics     *Metrics
	idleTimeout time.Duration
}

// NewHubManager creates a HubManager over the given stores. metrics may be nil.
func NewHubManager(ms *MatchStore, ts *TeamStore, metrics *Metrics) *HubManager {
	return &HubManager{
		hubs:        make(map[string]*Hub),
		ms:          ms,
		ts:          ts,
		metrics:     metrics,
		idleTimeout: defaultHubIdle,
	}
}

func (hm *HubManager) SetRaftManager(rm *RaftManager) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.rm = rm
}

func (hm *HubManager) raftManager() *RaftManager {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.rm
}

func (hm *HubManager) getLocked(id string) *Hub {
	if hub, ok := hm.hubs[id]; ok {
		return hub
	}
	hub := newHub(id, hm)
	hm.hubs[id] = hub
	go hub.run()
	return hub
}

// GetHub returns the hub of a match, starting it if needed.
func (hm *HubManager) GetHub(id string) *Hub {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.getLocked(id)
}

// Submit queues a request on the match's hub. It returns false when the hub
// is too busy to accept it.
func (hm *HubManager) Submit(id string, req HubRequest) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	select {
	case hm.getLocked(id).requests <- req:
		return true
	default:
		return false
	}
}

// removeIdle unregisters h if nothing is queued for it. Requests are only
// queued while holding hm.mu, so none can arrive after removal.
func (hm *HubManager) removeIdle(h *Hub) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if len(h.requests) > 0 || hm.hubs[h.matchId] != h {
		return false
	}
	delete(hm.hubs, h.matchId)
	return true
}

// Len returns the number of running hubs.
func (hm *HubManager) Len() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return len(hm.hubs)
}

// BroadcastToMatch hands a committed state to the match's hub, if one is
// running. It never blocks.
func (hm *HubManager) BroadcastToMatch(matchId string, sm *StoredMatch, events []scoring.Event) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hub, ok := hm.hubs[matchId]
	if !ok {
		return
	}
	select {
	case hub.requests <- HubRequest{Type: ReqTypeBroadcast, Match: sm, Events: events}:
	default:
		log.Printf("Warning: Hub channel full, dropping broadcast for match %s", matchId)
	}
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	userId string
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		switch msg.Type {
		case MsgTypeJoin:
			c.hub.requests <- HubRequest{Type: ReqTypeWSJoin, Client: c}
		case MsgTypePing:
			c.sendJSON(Message{Type: MsgTypePong})
		default:
			c.sendJSON(Message{Type: MsgTypeError, Error: "Unknown message type"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) sendJSON(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

// ServeWS upgrades the request and subscribes the connection to the live
// feed of one match. The client receives the scoreboard right away.
func ServeWS(hm *HubManager, w http.ResponseWriter, r *http.Request) {
	matchId := r.URL.Query().Get("matchId")
	if !isValidUUID(matchId) {
		http.Error(w, "Bad Request: matchId is missing or invalid", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	hub := hm.GetHub(matchId)
	client := &wsClient{
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, 256),
		userId: getUserID(r),
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
	hub.requests <- HubRequest{Type: ReqTypeWSJoin, Client: client}
}
