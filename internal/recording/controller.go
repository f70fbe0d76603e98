// Package recording implements the recording lifecycle that the dashboard
// drives: start/stop, speaker toggling and the live transcript.
package recording

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-scribe/internal/observability"
	"github.com/lexiqai/voice-scribe/internal/realtime"
	"github.com/lexiqai/voice-scribe/internal/transcript"
)

// State is the controller lifecycle state
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateError      State = "error"
)

// ErrSessionActive rejects Start while a session exists
var ErrSessionActive = errors.New("recording session already active")

// Config configures a Controller
type Config struct {
	Factory     realtime.Factory
	InitTimeout time.Duration
	Backend     string // Metrics label for the transport in use
}

// Controller owns at most one realtime session and the conversation log
type Controller struct {
	factory     realtime.Factory
	initTimeout time.Duration
	backend     string
	log         *transcript.Log

	mu         sync.Mutex
	state      State
	gen        uint64 // Bumped whenever the current session is abandoned
	speaker    transcript.Speaker
	transport  realtime.Transport
	router     *realtime.Router
	cancelInit context.CancelFunc
	cancelRun  context.CancelFunc
	inflight   chan struct{} // Closed once the last Start has released everything
	lastErr    error
	sessionID  string
	metrics    *observability.Metrics
	logger     zerolog.Logger

	subMu   sync.Mutex
	subs    map[chan Snapshot]struct{}
	version uint64
}

// NewController creates an idle controller
func NewController(cfg Config) *Controller {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 15 * time.Second
	}
	done := make(chan struct{})
	close(done)
	return &Controller{
		factory:     cfg.Factory,
		initTimeout: cfg.InitTimeout,
		backend:     cfg.Backend,
		log:         transcript.NewLog(),
		state:       StateIdle,
		inflight:    done,
		logger:      observability.WithComponent("recording"),
		subs:        make(map[chan Snapshot]struct{}),
	}
}

// Start opens a new session. It is rejected with ErrSessionActive unless the
// controller is idle. Any init failure is returned as *realtime.ConnectionError
// and leaves the controller idle with the error slot set.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.gen++
	gen := c.gen
	c.state = StateConnecting
	c.sessionID = observability.NewSessionID()
	logger := observability.WithSession(c.sessionID)
	metrics := observability.NewSessionMetrics(c.sessionID, c.backend)
	initCtx, cancel := context.WithTimeout(ctx, c.initTimeout)
	c.cancelInit = cancel
	prev := c.inflight
	done := make(chan struct{})
	c.inflight = done
	c.mu.Unlock()
	defer close(done)

	c.notify()
	logger.Info().Str("backend", c.backend).Msg("Starting recording session")

	// A session cancelled during connect may still be releasing the microphone
	select {
	case <-prev:
	case <-initCtx.Done():
	}

	transport := c.factory(logger)
	metrics.RecordInitStart()
	err := initCtx.Err()
	if err == nil {
		err = transport.Init(initCtx)
	}
	cancel()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		// Stop won the race; discard whatever Init produced
		if dErr := transport.Disconnect(); dErr != nil {
			logger.Warn().Err(dErr).Msg("Disconnect of cancelled session failed")
		}
		metrics.RecordInitEnd("cancelled")
		logger.Info().Msg("Recording session cancelled during connect")
		return &realtime.ConnectionError{Op: "init", Err: context.Canceled}
	}

	if err != nil {
		connErr := realtime.AsConnectionError("init", err)
		c.state = StateError
		c.lastErr = connErr
		c.cancelInit = nil
		c.mu.Unlock()

		if dErr := transport.Disconnect(); dErr != nil {
			logger.Warn().Err(dErr).Msg("Disconnect after failed init reported errors")
		}
		metrics.RecordInitEnd("failed")
		metrics.RecordError(connErr.Op, "recording")
		logger.Error().Err(connErr).Msg("Recording session failed to start")
		c.notify()
		c.resolveError(gen)
		return connErr
	}

	c.log.Reset()
	c.speaker = transcript.Doctor
	transport.SetCurrentSpeaker(transcript.Doctor)
	c.lastErr = nil
	c.state = StateRecording
	c.cancelInit = nil
	c.transport = transport
	c.metrics = metrics
	c.logger = logger
	c.router = realtime.NewRouter(realtime.RouterConfig{
		Speaker:   transport.CurrentSpeaker,
		OnSegment: func(seg transcript.Segment) { c.appendSegment(gen, seg) },
		OnError:   func(err error) { c.fail(gen, err) },
		OnUpdate:  func(realtime.Kind) { c.touch(gen) },
		Logger:    logger,
	})
	runCtx, runCancel := context.WithCancel(context.Background())
	c.cancelRun = runCancel
	router := c.router
	c.mu.Unlock()

	metrics.RecordInitEnd("started")
	logger.Info().Msg("Recording session started")
	c.notify()

	go c.consume(runCtx, gen, transport, router)
	return nil
}

// consume is the session's single event consumer
func (c *Controller) consume(ctx context.Context, gen uint64, transport realtime.Transport, router *realtime.Router) {
	if err := router.Run(ctx, transport.Events()); err != nil || ctx.Err() != nil {
		return
	}

	failure := transport.Err()
	if failure == nil {
		failure = &realtime.ConnectionError{Op: "stream", Err: errors.New("event stream ended")}
	}
	c.fail(gen, failure)
}

// Stop ends the current session. It is a no-op when idle. A Stop during
// connect abandons the pending Init; its resources are released when it returns.
// Disconnect failures are logged and never keep the controller from idling.
func (c *Controller) Stop() {
	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.gen++
		if c.cancelInit != nil {
			c.cancelInit()
			c.cancelInit = nil
		}
		c.state = StateIdle
		c.mu.Unlock()
		c.notify()
		return

	case StateRecording:
		// handled below

	default:
		c.mu.Unlock()
		return
	}

	c.gen++
	c.state = StateStopping
	transport, cancelRun, metrics, logger := c.transport, c.cancelRun, c.metrics, c.logger
	c.transport, c.router, c.cancelRun = nil, nil, nil
	c.mu.Unlock()
	c.notify()

	cancelRun()
	if err := transport.Disconnect(); err != nil {
		logger.Warn().Err(err).Msg("Disconnect reported errors")
		metrics.RecordError("disconnect_failed", "recording")
	}
	metrics.RecordSessionEnd()
	logger.Info().Int("entries", c.log.Len()).Msg("Recording session stopped")

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.notify()
}

// fail ends a recording session after an asynchronous failure.
// The conversation log is kept.
func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.state = StateError
	c.lastErr = err
	transport, cancelRun, metrics, logger := c.transport, c.cancelRun, c.metrics, c.logger
	c.transport, c.router, c.cancelRun = nil, nil, nil
	failedGen := c.gen
	c.mu.Unlock()

	logger.Error().Err(err).Msg("Recording session failed")
	c.notify()

	cancelRun()
	if dErr := transport.Disconnect(); dErr != nil {
		logger.Warn().Err(dErr).Msg("Disconnect after failure reported errors")
	}
	metrics.RecordSessionEnd()
	metrics.RecordError(errorType(err), "recording")

	c.resolveError(failedGen)
}

// resolveError moves a reported error back to idle
func (c *Controller) resolveError(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateError {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) appendSegment(gen uint64, seg transcript.Segment) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	metrics := c.metrics
	c.mu.Unlock()

	if c.log.Append(seg) {
		metrics.RecordSegment(seg.Speaker.String())
		c.notify()
	}
}

func (c *Controller) touch(gen uint64) {
	c.mu.Lock()
	current := c.gen == gen
	c.mu.Unlock()
	if current {
		c.notify()
	}
}

// ToggleSpeaker flips the speaker tag. It only has effect while recording.
func (c *Controller) ToggleSpeaker() (transcript.Speaker, bool) {
	c.mu.Lock()
	if c.state != StateRecording {
		speaker := c.speaker
		c.mu.Unlock()
		return speaker, false
	}
	c.speaker = c.speaker.Other()
	c.transport.SetCurrentSpeaker(c.speaker)
	speaker := c.speaker
	c.mu.Unlock()

	c.notify()
	return speaker, true
}

// SetSpeaker sets the speaker tag from an explicit detection signal.
// It only has effect while recording.
func (c *Controller) SetSpeaker(speaker transcript.Speaker) bool {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return false
	}
	changed := c.speaker != speaker
	c.speaker = speaker
	c.transport.SetCurrentSpeaker(speaker)
	c.mu.Unlock()

	if changed {
		c.notify()
	}
	return true
}

// State returns the lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Speaker returns the current speaker tag
func (c *Controller) Speaker() transcript.Speaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaker
}

// LastError returns the most recent session error, cleared by a successful Start
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Transcript returns a copy of the conversation log
func (c *Controller) Transcript() []transcript.Entry {
	return c.log.Entries()
}

// TranscriptText renders the log for downstream processing
func (c *Controller) TranscriptText() string {
	return c.log.Text()
}

// Playing reports whether remote audio is playing in the current session
func (c *Controller) Playing() bool {
	c.mu.Lock()
	router := c.router
	c.mu.Unlock()
	return router != nil && router.Playing()
}

// HealthCheck reports whether the controller can accept or is serving a session
func (c *Controller) HealthCheck(ctx context.Context) (bool, error) {
	if c.State() == StateStopping {
		return false, errors.New("session is stopping")
	}
	return true, nil
}

func errorType(err error) string {
	var upstream *realtime.UpstreamError
	if errors.As(err, &upstream) {
		return "upstream"
	}
	var connErr *realtime.ConnectionError
	if errors.As(err, &connErr) {
		return connErr.Op
	}
	return "unknown"
}
