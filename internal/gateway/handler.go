// Package gateway serves the dashboard feed: a WebSocket carrying recording
// commands in and controller snapshots out.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-scribe/internal/observability"
	"github.com/lexiqai/voice-scribe/internal/recording"
	"github.com/lexiqai/voice-scribe/internal/transcript"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxCommandSize  = 4096
	outboxSize      = 16
	defaultMinChars = 20
)

// Recorder is the controller surface the feed drives
type Recorder interface {
	Start(ctx context.Context) error
	Stop()
	ToggleSpeaker() (transcript.Speaker, bool)
	SetSpeaker(speaker transcript.Speaker) bool
	Snapshot() recording.Snapshot
	Subscribe() (<-chan recording.Snapshot, func())
	Transcript() []transcript.Entry
}

// Handler upgrades dashboard connections and serves the feed
type Handler struct {
	recorder Recorder
	base     context.Context
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a feed handler. base bounds sessions started through it;
// closing a dashboard connection does not stop the recording.
func NewHandler(base context.Context, recorder Recorder, allowedOrigins []string) *Handler {
	return &Handler{
		recorder: recorder,
		base:     base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: observability.WithComponent("gateway"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		// Local dashboard only
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

// ServeHTTP handles one dashboard connection
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Warn().Err(err).Msg("Failed to upgrade dashboard connection")
		return
	}

	client := &client{
		conn:     conn,
		recorder: h.recorder,
		base:     h.base,
		outbox:   make(chan Message, outboxSize),
		done:     make(chan struct{}),
		logger: h.logger.With().
			Str("correlation_id", observability.NewSessionID()).
			Str("remote_addr", r.RemoteAddr).
			Logger(),
	}
	client.logger.Info().Msg("Dashboard connected")
	client.serve()
	client.logger.Info().Msg("Dashboard disconnected")
}

// client is one dashboard connection
type client struct {
	conn     *websocket.Conn
	recorder Recorder
	base     context.Context
	outbox   chan Message
	done     chan struct{}
	closing  sync.Once
	pending  sync.WaitGroup
	logger   zerolog.Logger
}

func (c *client) serve() {
	updates, unsubscribe := c.recorder.Subscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(updates)
	}()

	c.readLoop()

	c.shutdown()
	unsubscribe()
	<-writerDone
	c.pending.Wait()
	c.conn.Close()
}

func (c *client) shutdown() {
	c.closing.Do(func() { close(c.done) })
}

// readLoop decodes commands until the connection fails
func (c *client) readLoop() {
	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Dashboard read error")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.send(Message{Type: TypeError, Error: &ErrorPayload{Kind: ErrorKindBadRequest, Message: "malformed command"}})
			continue
		}
		c.dispatch(cmd)
	}
}

// dispatch runs one command. start runs asynchronously so a stop can
// arrive while the session is connecting.
func (c *client) dispatch(cmd Command) {
	c.logger.Debug().Str("action", cmd.Action).Msg("Dashboard command")

	switch cmd.Action {
	case ActionStart:
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			if err := c.recorder.Start(c.base); err != nil {
				c.send(Message{Type: TypeError, ID: cmd.ID, Action: cmd.Action, Error: errorPayload(err)})
				return
			}
			c.ack(cmd)
		}()

	case ActionStop:
		c.recorder.Stop()
		c.ack(cmd)

	case ActionToggleSpeaker:
		speaker, ok := c.recorder.ToggleSpeaker()
		if !ok {
			c.reject(cmd, ErrorKindNotRecording, "speaker can only change while recording")
			return
		}
		c.send(Message{Type: TypeAck, ID: cmd.ID, Action: cmd.Action, Speaker: &speaker})

	case ActionSetSpeaker:
		speaker, err := transcript.ParseSpeaker(cmd.Speaker)
		if err != nil {
			c.reject(cmd, ErrorKindBadRequest, err.Error())
			return
		}
		if !c.recorder.SetSpeaker(speaker) {
			c.reject(cmd, ErrorKindNotRecording, "speaker can only change while recording")
			return
		}
		c.send(Message{Type: TypeAck, ID: cmd.ID, Action: cmd.Action, Speaker: &speaker})

	case ActionSnapshot:
		snap := c.recorder.Snapshot()
		c.send(Message{Type: TypeSnapshot, ID: cmd.ID, Snapshot: &snap})

	case ActionExport:
		c.send(Message{Type: TypeExport, ID: cmd.ID, Export: exportTranscript(c.recorder.Transcript(), cmd.MinChars)})

	default:
		c.reject(cmd, ErrorKindBadRequest, "unknown action: "+cmd.Action)
	}
}

func exportTranscript(entries []transcript.Entry, minChars int) *ExportPayload {
	if minChars <= 0 {
		minChars = defaultMinChars
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	payload := &ExportPayload{Text: transcript.Render(entries), Entries: entries, Valid: true}
	if err := transcript.ValidateForSubmission(payload.Text, minChars); err != nil {
		payload.Valid = false
		payload.Reason = err.Error()
	}
	return payload
}

func (c *client) ack(cmd Command) {
	c.send(Message{Type: TypeAck, ID: cmd.ID, Action: cmd.Action})
}

func (c *client) reject(cmd Command, kind, message string) {
	c.send(Message{Type: TypeError, ID: cmd.ID, Action: cmd.Action, Error: &ErrorPayload{Kind: kind, Message: message}})
}

// send queues a reply. Replies to a departed dashboard are dropped.
func (c *client) send(msg Message) {
	select {
	case c.outbox <- msg:
	case <-c.done:
	}
}

// writeLoop is the only writer on the connection
func (c *client) writeLoop(updates <-chan recording.Snapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := c.write(Message{Type: TypeSnapshot, Snapshot: &snap}); err != nil {
				c.fail(err)
				return
			}

		case msg := <-c.outbox:
			if err := c.write(msg); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *client) write(msg Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// fail unblocks the reader after a write error
func (c *client) fail(err error) {
	c.logger.Warn().Err(err).Msg("Dashboard write failed")
	observability.RecordError("feed_write", "gateway")
	c.shutdown()
	c.conn.Close()
}
