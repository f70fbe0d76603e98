// Package stt provides the Deepgram live-transcription backend behind the
// realtime.Transport contract.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-scribe/internal/audio"
	"github.com/lexiqai/voice-scribe/internal/observability"
	"github.com/lexiqai/voice-scribe/internal/realtime"
	"github.com/lexiqai/voice-scribe/internal/resilience"
)

// Deepgram expects 16-bit linear PCM at this rate
const deepgramSampleRate = 16000

// DeepgramConfig configures the live transcription session
type DeepgramConfig struct {
	APIKey         string
	Model          string
	Language       string
	EventQueueSize int
}

// messageCallbackHandler implements the LiveMessageCallback interface
// It embeds the default handler and overrides the callbacks that map to session events
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler // Embed default handler for methods we don't override
	transport                              *DeepgramTransport
}

// Open maps the websocket opening to session readiness
func (m *messageCallbackHandler) Open(or *msginterfaces.OpenResponse) error {
	m.transport.push(realtime.Event{Type: realtime.TypeSessionCreated})
	return nil
}

// Message maps interim and final results to transcription events
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.transport.handleResult(message)
	return nil
}

// SpeechStarted maps Deepgram VAD onset
func (m *messageCallbackHandler) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	m.transport.resetInterim()
	m.transport.push(realtime.Event{Type: realtime.TypeSpeechStarted})
	return nil
}

// UtteranceEnd maps the end of an utterance to speech-stopped
func (m *messageCallbackHandler) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	m.transport.push(realtime.Event{Type: realtime.TypeSpeechStopped})
	return nil
}

// Close reports a remote close as a transport failure
func (m *messageCallbackHandler) Close(cr *msginterfaces.CloseResponse) error {
	if !m.transport.isClosed() {
		m.transport.fail(&realtime.ConnectionError{Op: "stream", Err: errors.New("closed by remote")})
	}
	return nil
}

// Error forwards Deepgram errors as upstream error events
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	msg := errorResponse.ErrMsg
	if msg == "" {
		msg = errorResponse.Description
	}
	m.transport.push(realtime.Event{
		Type:  realtime.TypeError,
		Error: &realtime.ErrorDetail{Message: msg, Code: errorResponse.ErrCode, Type: errorResponse.Type},
	})
	return nil
}

// DeepgramTransport streams the microphone to Deepgram and surfaces its
// results as realtime events. There is no remote audio on this backend.
type DeepgramTransport struct {
	realtime.SpeakerState

	cfg        DeepgramConfig
	openSource audio.SourceOpener
	breaker    *resilience.CircuitBreaker
	queue      *realtime.EventQueue
	logger     zerolog.Logger

	// Interim hypothesis already forwarded; touched only from callbacks
	interimMu sync.Mutex
	interim   string

	mu      sync.Mutex
	closed  bool
	started bool
	client  *listenClient.WSCallback
	source  audio.Source
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// NewDeepgramTransport creates an uninitialized transport. breaker may be nil.
func NewDeepgramTransport(cfg DeepgramConfig, openSource audio.SourceOpener, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *DeepgramTransport {
	return &DeepgramTransport{
		cfg:        cfg,
		openSource: openSource,
		breaker:    breaker,
		queue:      realtime.NewEventQueue(cfg.EventQueueSize),
		logger:     logger.With().Str("component", "deepgram_transport").Logger(),
	}
}

// Init opens the microphone and connects the live transcription stream
func (d *DeepgramTransport) Init(ctx context.Context) error {
	d.mu.Lock()
	if d.closed || d.started {
		d.mu.Unlock()
		return &realtime.ConnectionError{Op: "init", Err: realtime.ErrTransportClosed}
	}
	d.started = true
	d.mu.Unlock()

	if err := d.init(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			d.logger.Debug().Err(err).Msg("Init interrupted")
			err = ctxErr
		}
		if dErr := d.Disconnect(); dErr != nil {
			d.logger.Warn().Err(dErr).Msg("Cleanup after failed init reported errors")
		}
		return realtime.AsConnectionError("init", err)
	}
	return nil
}

func (d *DeepgramTransport) init(ctx context.Context) error {
	source, err := d.openSource()
	if err != nil {
		return &realtime.PermissionError{Err: err}
	}
	if !d.adopt(func() { d.source = source }) {
		source.Close()
		return realtime.ErrTransportClosed
	}

	// The stream outlives Init, so it gets its own context
	streamCtx, cancel := context.WithCancel(context.Background())
	if !d.adopt(func() { d.cancel = cancel }) {
		cancel()
		return realtime.ErrTransportClosed
	}

	connect := func(ctx context.Context) error {
		return d.connect(ctx, streamCtx, cancel)
	}
	if d.breaker != nil {
		err = d.breaker.Call(ctx, connect)
	} else {
		err = connect(ctx)
	}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return &realtime.ConnectionError{Op: "connect", Err: fmt.Errorf("deepgram unavailable: %w", err)}
		}
		return err
	}

	if !d.adopt(func() { d.workers.Add(1) }) {
		return realtime.ErrTransportClosed
	}
	go d.pumpMicrophone(streamCtx, source)

	d.logger.Info().
		Str("model", d.cfg.Model).
		Str("language", d.cfg.Language).
		Msg("Deepgram streaming session established")
	return nil
}

func (d *DeepgramTransport) connect(ctx, streamCtx context.Context, cancel context.CancelFunc) error {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       d.cfg.Language,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000", // End utterance after 1 second of silence (string in v3)
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     deepgramSampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		transport:              d,
	}

	client, err := listenClient.NewWSUsingCallback(streamCtx, d.cfg.APIKey, nil, tOptions, callback)
	if err != nil {
		return &realtime.ConnectionError{Op: "connect", Err: fmt.Errorf("failed to create Deepgram client: %w", err)}
	}
	if !d.adopt(func() { d.client = client }) {
		return realtime.ErrTransportClosed
	}

	// A single attempt; the caller decides whether to start a new session
	connected := make(chan bool, 1)
	go func() { connected <- client.ConnectWithCancel(streamCtx, cancel, 1) }()

	select {
	case ok := <-connected:
		if !ok {
			return &realtime.ConnectionError{Op: "connect", Err: errors.New("deepgram websocket connection failed")}
		}
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// adopt records an acquired resource unless the transport already closed
func (d *DeepgramTransport) adopt(set func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	set()
	return true
}

// pumpMicrophone resamples captured frames and streams them as linear16
func (d *DeepgramTransport) pumpMicrophone(ctx context.Context, source audio.Source) {
	defer d.workers.Done()

	d.mu.Lock()
	client := d.client
	d.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source.Frames():
			if !ok {
				return
			}
			pcm := audio.SamplesToBytes(audio.Resample(frame, source.SampleRate(), deepgramSampleRate))
			if len(pcm) == 0 {
				continue
			}
			if _, err := client.Write(pcm); err != nil {
				if ctx.Err() != nil {
					return
				}
				d.logger.Debug().Err(err).Msg("Failed to send audio to Deepgram")
				observability.RecordError("send_failed", "deepgram_transport")
				continue
			}
			observability.RecordAudioBytes("out", int64(len(pcm)))
		}
	}
}

// handleResult maps one Deepgram result. Interim results carry the whole
// hypothesis so far; only the unseen suffix is forwarded as a delta.
func (d *DeepgramTransport) handleResult(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}
	text := msg.Channel.Alternatives[0].Transcript

	if msg.IsFinal {
		d.resetInterim()
		d.push(realtime.Event{Type: realtime.TypeTranscriptionCompleted, Transcript: text})
		return
	}
	if text == "" {
		return
	}

	d.interimMu.Lock()
	prev := d.interim
	d.interim = text
	d.interimMu.Unlock()

	if strings.HasPrefix(text, prev) {
		if suffix := text[len(prev):]; suffix != "" {
			d.push(realtime.Event{Type: realtime.TypeTranscriptionDelta, Delta: suffix})
		}
		return
	}
	// Revised hypothesis: restart the partial text
	d.push(realtime.Event{Type: realtime.TypeSpeechStarted})
	d.push(realtime.Event{Type: realtime.TypeTranscriptionDelta, Delta: text})
}

func (d *DeepgramTransport) resetInterim() {
	d.interimMu.Lock()
	d.interim = ""
	d.interimMu.Unlock()
}

func (d *DeepgramTransport) push(ev realtime.Event) {
	d.queue.Push(ev)
}

func (d *DeepgramTransport) fail(err error) {
	d.logger.Error().Err(err).Msg("Deepgram transport failed")
	observability.RecordError("transport_failed", "deepgram_transport")
	d.queue.Close(err)
}

func (d *DeepgramTransport) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Events returns the inbound events
func (d *DeepgramTransport) Events() <-chan realtime.Event {
	return d.queue.Events()
}

// Err returns the fatal failure that closed Events, if any
func (d *DeepgramTransport) Err() error {
	return d.queue.Err()
}

// Disconnect finishes the stream and releases the microphone. Idempotent.
func (d *DeepgramTransport) Disconnect() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	client, source, cancel := d.client, d.source, d.cancel
	d.mu.Unlock()

	d.queue.Close(nil)

	var errs []error
	if source != nil {
		if err := source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release microphone: %w", err))
		}
	}
	d.workers.Wait()
	if client != nil {
		// Finish flushes the final results before closing the socket
		client.Finish()
	}
	if cancel != nil {
		cancel()
	}

	d.logger.Info().Msg("Deepgram streaming session stopped")
	return errors.Join(errs...)
}
