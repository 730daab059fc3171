// Duelbox duel lobby
//
// Each lobby pairs up exactly two players at a time for a turn-based board
// game duel. The server never interprets the game itself: boards, roles and
// results are opaque payloads relayed verbatim between the two paired
// connections.
//
// Features:
// - WebSockets per lobby ID: /path/:lobbyid and /path/:lobbyid/ws
// - Players announce a username to become challengeable
// - Challenge/accept/decline handshake pairs two idle players
// - Busy players cannot be challenged; the challenger is told who is busy
// - Presence snapshots (online + busy) broadcast to every connection on change
// - Moves, results and reset requests forwarded untouched to the opponent
// - Leaving or disconnecting frees both sides of a session
// - Lobbies auto-reaped after configurable idle timeout
// - Random 8-char lobby IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current lobby, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type       string          `json:"type"`                  // "announce", "challenge", "challenge_accept", "challenge_decline", "leave", "move", "result", "reset"
	Username   string          `json:"username,omitempty"`    // announce
	OpponentID string          `json:"opponent_id,omitempty"` // challenge / challenge_accept / challenge_decline
	Opponent   *Participant    `json:"opponent,omitempty"`    // leave / move / result / reset
	Board      json.RawMessage `json:"board,omitempty"`       // move; opaque, never parsed
	Role       string          `json:"role,omitempty"`        // move / result; opaque, never parsed
}

// SessionInfoMessage is sent immediately on connect so the client knows the
// connection ID the server assigned to it.
type SessionInfoMessage struct {
	Type string `json:"type"` // "session"
	ID   string `json:"id"`
}

// PresenceMessage is the full (online, busy) snapshot, broadcast to every
// connection whenever either set changes.
type PresenceMessage struct {
	Type   string        `json:"type"` // "presence"
	Online []Participant `json:"online"`
	Busy   []string      `json:"busy"`
}

// PlayerBusyMessage tells a challenger their invitee is already in a session.
type PlayerBusyMessage struct {
	Type   string      `json:"type"` // "player_busy"
	Player Participant `json:"player"`
}

// ChallengedMessage delivers a challenge to its invitee.
type ChallengedMessage struct {
	Type   string      `json:"type"` // "challenged"
	Player Participant `json:"player"`
}

// ChallengeAcceptedMessage tells a challenger who accepted their challenge.
type ChallengeAcceptedMessage struct {
	Type   string      `json:"type"` // "challenge_accepted"
	Player Participant `json:"player"`
}

// ChallengeDeclinedMessage tells a challenger who declined their challenge.
type ChallengeDeclinedMessage struct {
	Type   string      `json:"type"` // "challenge_declined"
	Player Participant `json:"player"`
}

// OpponentLeftMessage tells the remaining player their opponent is gone,
// whether they left on purpose or their connection dropped.
type OpponentLeftMessage struct {
	Type     string `json:"type"` // "opponent_left"
	Username string `json:"username"`
}

// MoveMessage forwards a move to the opponent, payload untouched.
type MoveMessage struct {
	Type  string          `json:"type"` // "move"
	Board json.RawMessage `json:"board"`
	Role  string          `json:"role"`
}

// ResultMessage forwards a win announcement to the opponent.
type ResultMessage struct {
	Type string `json:"type"` // "result"
	Role string `json:"role"`
}

// ResetMessage forwards a reset request to the opponent.
type ResetMessage struct {
	Type string `json:"type"` // "reset"
}

type Client struct {
	conn *websocket.Conn
	send chan any
	id   string // connection ID, assigned at upgrade, unique among live connections
}

type request struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id      string
	clients map[*Client]bool
	reg     *registry
	pairs   *pairTable

	register   chan *Client
	unreg      chan *Client
	announces  chan request
	challenges chan request
	responses  chan request
	relays     chan request

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newHub(lobbyID string) *Hub {
	now := time.Now()
	return &Hub{
		id:         lobbyID,
		clients:    make(map[*Client]bool),
		reg:        newRegistry(),
		pairs:      newPairTable(),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		announces:  make(chan request),
		challenges: make(chan request),
		responses:  make(chan request),
		relays:     make(chan request),
		createdAt:  now,
		lastActive: now,
	}
}

// run serializes every mutation of the online and busy sets: each case body
// is one indivisible transition, so no two events ever interleave.
func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			snapshot := h.presenceLocked()
			h.mu.Unlock()

			// Late joiners see accurate state immediately.
			c.send <- SessionInfoMessage{
				Type: "session",
				ID:   c.id,
			}
			c.send <- snapshot

		case c := <-h.unreg:
			h.handleDisconnect(cfg, c)

		case req := <-h.announces:
			h.handleAnnounce(cfg, req)

		case req := <-h.challenges:
			h.handleChallenge(cfg, req)

		case req := <-h.responses:
			h.handleResponse(cfg, req)

		case req := <-h.relays:
			h.handleRelay(cfg, req)
		}
	}
}

func (h *Hub) presenceLocked() PresenceMessage {
	return PresenceMessage{
		Type:   "presence",
		Online: h.reg.list(),
		Busy:   h.pairs.busyIDs(),
	}
}

// broadcastPresenceLocked sends the current snapshot to every connection,
// announced or not. Best effort: clients that can't keep up are dropped.
func (h *Hub) broadcastPresenceLocked() {
	msg := h.presenceLocked()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// sendToLocked delivers a message to the connection with the given ID, if
// it is still attached to this hub.
func (h *Hub) sendToLocked(id string, msg any) {
	for client := range h.clients {
		if client.id != id {
			continue
		}

		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
		return
	}
}

// handleAnnounce processes "announce" messages, adding the connection to
// the online set.
func (h *Hub) handleAnnounce(cfg *Config, req request) {
	c := req.client
	if req.msg.Username == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	p := h.reg.announce(c.id, req.msg.Username)
	logf(cfg, "GAMES: %q now online in %s", p.Username, h.id)

	h.broadcastPresenceLocked()
}

// handleChallenge processes "challenge" messages. The challenger must be
// announced and idle; the invitee must be announced. A busy invitee is
// reported back to the challenger only, with no state change.
func (h *Hub) handleChallenge(cfg *Config, req request) {
	c := req.client
	inviteeID := req.msg.OpponentID

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	challenger, ok := h.reg.lookup(c.id)
	if !ok || inviteeID == "" || inviteeID == c.id {
		return
	}

	if h.pairs.isBusy(c.id) {
		return
	}

	invitee, ok := h.reg.lookup(inviteeID)
	if !ok {
		// Already disconnected, or never announced.
		logf(cfg, "GAMES: %q challenged a vanished connection in %s", challenger.Username, h.id)
		return
	}

	if h.pairs.isBusy(inviteeID) {
		h.sendToLocked(c.id, PlayerBusyMessage{
			Type:   "player_busy",
			Player: invitee,
		})
		return
	}

	// Only the challenger goes busy now; the invitee stays idle until it
	// responds.
	h.pairs.markBusy(c.id, inviteeID)

	h.sendToLocked(inviteeID, ChallengedMessage{
		Type:   "challenged",
		Player: challenger,
	})

	logf(cfg, "GAMES: %q challenged %q in %s", challenger.Username, invitee.Username, h.id)

	h.broadcastPresenceLocked()
}

// handleResponse processes "challenge_accept" and "challenge_decline"
// messages from an invitee. Responses citing a challenger that is not
// actually pending toward this connection are dropped.
func (h *Hub) handleResponse(cfg *Config, req request) {
	c := req.client
	challengerID := req.msg.OpponentID

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	responder, ok := h.reg.lookup(c.id)
	if !ok || challengerID == "" {
		return
	}

	pending, ok := h.pairs.partnerOf(challengerID)
	if !ok || pending != c.id {
		return
	}

	switch req.msg.Type {
	case "challenge_accept":
		if h.pairs.isBusy(c.id) {
			return
		}

		h.pairs.markBusyPair(challengerID, c.id)

		h.sendToLocked(challengerID, ChallengeAcceptedMessage{
			Type:   "challenge_accepted",
			Player: responder,
		})

		logf(cfg, "GAMES: %q accepted a challenge in %s", responder.Username, h.id)

	case "challenge_decline":
		h.pairs.clear(challengerID)

		h.sendToLocked(challengerID, ChallengeDeclinedMessage{
			Type:   "challenge_declined",
			Player: responder,
		})

		logf(cfg, "GAMES: %q declined a challenge in %s", responder.Username, h.id)
	}

	h.broadcastPresenceLocked()
}

// handleRelay processes in-session events. The opponent is resolved by the
// sender and forwarded to verbatim; the server never validates moves, turn
// order, or board shape.
func (h *Hub) handleRelay(cfg *Config, req request) {
	c := req.client
	msg := req.msg

	if msg.Opponent == nil || msg.Opponent.ID == "" {
		return
	}
	opponentID := msg.Opponent.ID

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	switch msg.Type {
	case "move":
		h.sendToLocked(opponentID, MoveMessage{
			Type:  "move",
			Board: msg.Board,
			Role:  msg.Role,
		})

		if sender, ok := h.reg.lookup(c.id); ok {
			logf(cfg, "GAMES: %q just moved as %s in %s, next move by %q", sender.Username, msg.Role, h.id, msg.Opponent.Username)
		}

	case "result":
		h.sendToLocked(opponentID, ResultMessage{
			Type: "result",
			Role: msg.Role,
		})

	case "reset":
		h.sendToLocked(opponentID, ResetMessage{
			Type: "reset",
		})

	case "leave":
		departing, ok := h.reg.lookup(c.id)
		if !ok {
			return
		}

		h.sendToLocked(opponentID, OpponentLeftMessage{
			Type:     "opponent_left",
			Username: departing.Username,
		})

		// Leaving always frees both sides, no matter who initiated.
		h.pairs.clearPair(c.id, opponentID)

		logf(cfg, "GAMES: %q left their session in %s", departing.Username, h.id)

		h.broadcastPresenceLocked()
	}
}

// handleDisconnect unwinds all state for a dropped connection. Safe to call
// more than once for the same client, and for clients that never announced.
func (h *Hub) handleDisconnect(cfg *Config, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}

	departing, announced := h.reg.lookup(c.id)

	partner, wasBusy := h.pairs.partnerOf(c.id)
	activePair := false
	if wasBusy {
		if back, ok := h.pairs.partnerOf(partner); ok && back == c.id {
			activePair = true
		}
	}

	// Busy cleanup happens before the online entry goes away, so no
	// snapshot ever shows a busy connection that is not online.
	h.pairs.clear(c.id)
	for _, waiting := range h.pairs.linkedTo(c.id) {
		h.pairs.clear(waiting)
	}

	if activePair {
		h.sendToLocked(partner, OpponentLeftMessage{
			Type:     "opponent_left",
			Username: departing.Username,
		})
	}

	h.reg.remove(c.id)

	if announced {
		logf(cfg, "GAMES: %q went offline in %s", departing.Username, h.id)
	}

	h.broadcastPresenceLocked()
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LobbyManager holds a set of hubs keyed by lobby ID, so each $path/$lobbyid
// is its own isolated presence and matchmaking world.
type LobbyManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newLobbyManager(idleTimeout time.Duration) *LobbyManager {
	lm := &LobbyManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go lm.reaperLoop()
	}
	return lm
}

func (lm *LobbyManager) getHub(cfg *Config, lobbyID string) *Hub {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if hub, ok := lm.hubs[lobbyID]; ok {
		return hub
	}

	hub := newHub(lobbyID)
	lm.hubs[lobbyID] = hub
	go hub.run(cfg)
	return hub
}

// newLobbyID generates a crypto-random lobby ID and ensures it doesn't
// collide with existing lobbies.
func (lm *LobbyManager) newLobbyID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		lm.mu.Lock()
		_, exists := lm.hubs[id]
		lm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (lm *LobbyManager) reaperLoop() {
	ticker := time.NewTicker(lm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-lm.idleTimeout)

		lm.mu.Lock()
		for id, hub := range lm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(lm.hubs, id)
				go hub.closeAll()
			}
		}
		lm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :lobbyid
func serveWSForLobby(cfg *Config, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		lobbyID := ps.ByName("lobbyid")
		if lobbyID == "" {
			http.Error(w, "missing lobby id", http.StatusBadRequest)
			return
		}

		hub := lm.getHub(cfg, lobbyID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			id:   uuid.NewString(),
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "announce":
			h.announces <- request{
				client: c,
				msg:    msg,
			}
		case "challenge":
			h.challenges <- request{
				client: c,
				msg:    msg,
			}
		case "challenge_accept", "challenge_decline":
			h.responses <- request{
				client: c,
				msg:    msg,
			}
		case "leave", "move", "result", "reset":
			h.relays <- request{
				client: c,
				msg:    msg,
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current lobby URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	lobbyID := ps.ByName("lobbyid")
	if lobbyID == "" {
		http.Error(w, "missing lobby id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:lobbyid/qr; strip trailing "/qr" to get the lobby URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(indexHTML))
	}
}

// redirectNewLobby handles GET /path by generating a new random lobby ID
// (with server-side collision detection) and redirecting to /path/:lobbyid.
func redirectNewLobby(cfg *Config, path string, lm *LobbyManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		lobbyID := lm.newLobbyID()
		logf(cfg, "GAMES: Created lobby %s/%s", path, lobbyID)
		http.Redirect(w, r, path+"/"+lobbyID, http.StatusTemporaryRedirect)
	}
}

// registerDuelGame sets up routes so that:
//   - $path                  → redirects to new random lobby (8-char ID)
//   - $path/:lobbyid         → HTML client
//   - $path/:lobbyid/ws      → WebSocket for that lobby
//   - $path/:lobbyid/qr      → PNG QR code for that lobby URL
func registerDuelGame(cfg *Config, path string, mux *httprouter.Router) {
	lm := newLobbyManager(cfg.sessionTimeout)

	// Root path → redirect to new random lobby
	mux.GET(cfg.prefix+path, redirectNewLobby(cfg, cfg.prefix+path, lm))

	// Per-lobby client view (HTML)
	mux.GET(cfg.prefix+path+"/:lobbyid", getIndexHandler(cfg))

	// Per-lobby websocket
	mux.GET(cfg.prefix+path+"/:lobbyid/ws", serveWSForLobby(cfg, lm))

	// Per-lobby QR code
	mux.GET(cfg.prefix+path+"/:lobbyid/qr", qrHandler)
}
