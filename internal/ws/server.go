// Package ws implements the device protocol server: token-gated session
// establishment, command dispatch, and state broadcasting over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sousvide_simulator/internal/device"
	"sousvide_simulator/internal/logger"
	"sousvide_simulator/internal/models"
	"sousvide_simulator/internal/repository"
)

// Close code sent to every session on simulator shutdown.
const CloseShutdown = websocket.CloseGoingAway // 1001

// requiredAccessory is the capability tag a client must advertise in
// supportedAccessories.
const requiredAccessory = "APC"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The simulator serves local test clients only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TokenStore answers whether a bearer token may open a session.
type TokenStore interface {
	Valid(token string) bool
	Expired(token string) bool
}

// FaultGate is the slice of the fault injector the protocol layer consults
// on every command.
type FaultGate interface {
	ShouldFailCommand() bool
	Latency() time.Duration
}

// Server owns the session set and the command dispatch. The session lock is
// independent of the device lock: session lifecycle is orthogonal to state
// content, and neither is ever held across a network write.
type Server struct {
	dev    *device.Device
	tokens TokenStore
	msgLog repository.MessageLog
	log    *logger.Logger

	intervalIdle    time.Duration
	intervalCooking time.Duration

	gate FaultGate

	mu       sync.RWMutex
	sessions map[*session]struct{}
	selected bool

	done chan struct{}
	once sync.Once
}

// NewServer builds the protocol server. Broadcast intervals are in real
// seconds before time-scale division.
func NewServer(
	dev *device.Device,
	tokens TokenStore,
	msgLog repository.MessageLog,
	intervalIdleSec, intervalCookingSec float64,
	log *logger.Logger,
) *Server {
	return &Server{
		dev:             dev,
		tokens:          tokens,
		msgLog:          msgLog,
		log:             log,
		intervalIdle:    time.Duration(intervalIdleSec * float64(time.Second)),
		intervalCooking: time.Duration(intervalCookingSec * float64(time.Second)),
		sessions:        make(map[*session]struct{}),
		done:            make(chan struct{}),
	}
}

// SetFaultGate wires the fault injector in after construction; the injector
// needs the server first for its disconnect effects.
func (s *Server) SetFaultGate(g FaultGate) { s.gate = g }

// Router returns the gin engine serving the websocket endpoint at "/".
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/", s.handleConnect)
	return router
}

// handleConnect validates the connection request, upgrades it, registers
// the session, and sends discovery plus the initial state snapshot.
func (s *Server) handleConnect(c *gin.Context) {
	if !s.dev.Online() {
		c.String(http.StatusServiceUnavailable, "Device offline")
		return
	}

	token := c.Query("token")
	if token == "" || !s.tokens.Valid(token) || s.tokens.Expired(token) {
		s.log.Infow("ws_connection_rejected", "reason", "bad token")
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	accessories := c.Query("supportedAccessories")
	if !strings.Contains(accessories, requiredAccessory) {
		s.log.Infow("ws_connection_rejected", "reason", "missing accessory", "supportedAccessories", accessories)
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorw("ws_upgrade_failed", "err", err)
		return
	}

	sess := &session{srv: s, conn: conn, send: make(chan []byte, sendBufferSize)}
	s.addSession(sess)
	go sess.writePump()

	snapshot := s.dev.Snapshot()
	s.sendMessage(sess, buildDeviceListEvent(snapshot))
	s.sendMessage(sess, buildStateEvent(snapshot))

	// Blocks until the client disconnects or is force-closed.
	sess.readLoop()
}

func (s *Server) addSession(c *session) {
	s.mu.Lock()
	s.sessions[c] = struct{}{}
	total := len(s.sessions)
	first := !s.selected
	s.selected = true
	s.mu.Unlock()

	if first {
		// Device selection is global and happens once per simulator run;
		// later connections rediscover without side effects.
		s.log.Infow("device_selected", "cookerId", s.dev.Snapshot().CookerID)
	}
	s.log.Infow("ws_client_connected", "total", total)
}

// removeSession drops a session from the broadcast set. Safe to call more
// than once.
func (s *Server) removeSession(c *session) {
	s.mu.Lock()
	_, ok := s.sessions[c]
	if ok {
		delete(s.sessions, c)
	}
	total := len(s.sessions)
	s.mu.Unlock()

	if ok {
		c.close(nil)
		s.log.Infow("ws_client_disconnected", "total", total)
	}
}

// SessionCount reports connected clients, for the control API health probe.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// sendMessage marshals, records, and queues one message for one session.
func (s *Server) sendMessage(c *session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Errorw("ws_marshal_failed", "err", err)
		return
	}
	s.record(models.DirectionOutbound, string(data))
	if !c.queue(data) {
		s.log.Infow("ws_client_slow_dropping")
		s.removeSession(c)
	}
}

// BroadcastState pushes the full current state to every connected session.
// The state snapshot is taken before any network send, so the device lock
// is never held across I/O.
func (s *Server) BroadcastState() {
	s.mu.RLock()
	if len(s.sessions) == 0 {
		s.mu.RUnlock()
		return
	}
	targets := make([]*session, 0, len(s.sessions))
	for c := range s.sessions {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	data, err := json.Marshal(buildStateEvent(s.dev.Snapshot()))
	if err != nil {
		s.log.Errorw("ws_marshal_failed", "err", err)
		return
	}
	s.record(models.DirectionOutbound, string(data))

	for _, c := range targets {
		if !c.queue(data) {
			s.removeSession(c)
		}
	}
}

// DisconnectAll force-closes every session with the given close code.
// Used for offline simulation and shutdown.
func (s *Server) DisconnectAll(code int, reason string) {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for c := range s.sessions {
		targets = append(targets, c)
		delete(s.sessions, c)
	}
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	for _, c := range targets {
		c.close(msg)
	}
	if len(targets) > 0 {
		s.log.Infow("ws_sessions_closed", "count", len(targets), "code", code, "reason", reason)
	}
}

// Shutdown closes all sessions with the shutting-down code and stops any
// pending latency delays.
func (s *Server) Shutdown() {
	s.once.Do(func() { close(s.done) })
	s.DisconnectAll(CloseShutdown, "Server shutting down")
}

// RunBroadcastLoop periodically pushes state until ctx is canceled. The
// interval tracks the device state (frequent while heating or cooking) and
// is divided by the time scale so accelerated runs still see timely
// updates.
func (s *Server) RunBroadcastLoop(ctx context.Context) {
	for {
		interval := s.intervalIdle
		if s.dev.State().Active() {
			interval = s.intervalCooking
		}
		scaled := time.Duration(float64(interval) / s.dev.TimeScale())

		timer := time.NewTimer(scaled)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.BroadcastState()
		}
	}
}

// record appends one wire message to the history log.
func (s *Server) record(direction, raw string) {
	if s.msgLog == nil {
		return
	}
	err := s.msgLog.Append(context.Background(), models.MessageLogEntry{
		Direction: direction,
		Raw:       raw,
	})
	if err != nil {
		s.log.Errorw("message_log_append_failed", "err", err)
	}
}

// handleMessage parses and dispatches one inbound frame. Every outcome is
// answered with a response addressed to the message's requestId; a bad
// message never closes the connection.
func (s *Server) handleMessage(c *session, raw []byte) {
	s.record(models.DirectionInbound, string(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.sendMessage(c, buildErrorResponse(unknownRequestID, device.CodeInvalidPayload, "invalid JSON: "+err.Error()))
		return
	}

	requestID := env.RequestID
	if requestID == "" {
		requestID = unknownRequestID
	}
	if env.Command == "" || env.RequestID == "" || len(env.Payload) == 0 {
		s.sendMessage(c, buildErrorResponse(requestID, device.CodeInvalidCommand, "message requires command, requestId and payload fields"))
		return
	}

	kind := parseCommandKind(env.Command)
	if kind == kindUnknown {
		s.sendMessage(c, buildErrorResponse(requestID, device.CodeInvalidCommand, "unknown command: "+env.Command))
		return
	}

	if s.gate != nil && s.gate.ShouldFailCommand() {
		// Intermittent failure: the command is lost in transit, so the
		// client sees neither execution nor a response.
		s.log.Infow("command_dropped", "command", env.Command, "requestId", env.RequestID)
		return
	}

	opErr := s.dispatch(kind, env.Payload, c, requestID)
	if opErr == errResponded {
		return
	}

	s.applyLatency()

	if opErr != nil {
		s.sendMessage(c, commandErrorResponse(requestID, opErr))
		return
	}
	s.sendMessage(c, buildOKResponse(requestID))

	// Every attached client observes the effect of any client's command.
	s.BroadcastState()
}

// errResponded marks payload-decode failures already answered in dispatch.
var errResponded = &device.CommandError{Code: "responded", Message: "responded"}

func (s *Server) dispatch(kind commandKind, payload json.RawMessage, c *session, requestID string) error {
	badPayload := func(err error) error {
		s.sendMessage(c, buildErrorResponse(requestID, device.CodeInvalidPayload, "invalid payload: "+err.Error()))
		return errResponded
	}

	switch kind {
	case kindStart:
		var p startPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return badPayload(err)
		}
		if p.Unit == "" {
			p.Unit = models.UnitCelsius
		}
		return s.dev.Start(p.TargetTemperature, p.Unit, p.Timer)

	case kindStop:
		return s.dev.Stop()

	case kindSetTargetTemp:
		var p setTargetTempPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return badPayload(err)
		}
		if p.Unit == "" {
			p.Unit = models.UnitCelsius
		}
		return s.dev.SetTargetTemperature(p.TargetTemperature, p.Unit)

	case kindSetTimer:
		var p setTimerPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return badPayload(err)
		}
		return s.dev.SetTimer(p.Timer)
	}
	return &device.CommandError{Code: device.CodeInvalidCommand, Message: "unknown command"}
}

// applyLatency delays the response by the injected duration. Each session
// runs its own read loop, so the sleep never blocks other connections;
// shutdown interrupts it.
func (s *Server) applyLatency() {
	if s.gate == nil {
		return
	}
	delay := s.gate.Latency()
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	select {
	case <-timer.C:
	case <-s.done:
		timer.Stop()
	}
}
