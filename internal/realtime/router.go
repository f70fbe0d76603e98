package realtime

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-scribe/internal/observability"
	"github.com/lexiqai/voice-scribe/internal/transcript"
)

// RouterConfig wires a router to its session
type RouterConfig struct {
	// Speaker returns the tag current at completion time
	Speaker func() transcript.Speaker
	// OnSegment receives each completed segment, in order
	OnSegment func(transcript.Segment)
	// OnError receives UpstreamError values from error events
	OnError func(error)
	// OnUpdate is called after partial text or playback state changes
	OnUpdate func(Kind)
	// Now overrides the wall clock (tests)
	Now    func() time.Time
	Logger zerolog.Logger
}

// Router interprets control-channel events for one session.
// Handle and Run must be driven from a single goroutine; Playing and
// Partial may be read from any goroutine.
type Router struct {
	cfg RouterConfig

	partial   strings.Builder
	lastStamp time.Time
	playing   atomic.Bool

	mu          sync.RWMutex
	partialView string
}

// NewRouter creates a router. Nil callbacks are treated as no-ops.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Speaker == nil {
		cfg.Speaker = func() transcript.Speaker { return transcript.Doctor }
	}
	if cfg.OnSegment == nil {
		cfg.OnSegment = func(transcript.Segment) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	if cfg.OnUpdate == nil {
		cfg.OnUpdate = func(Kind) {}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Router{cfg: cfg}
}

// Run drains events until the channel closes or ctx is done
func (r *Router) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Handle(ev)
		}
	}
}

// HandleMessage decodes and routes one raw control-channel message.
// Malformed messages are logged and skipped.
func (r *Router) HandleMessage(data []byte) Kind {
	ev, err := DecodeEvent(data)
	if err != nil {
		r.cfg.Logger.Warn().Err(err).Int("bytes", len(data)).Msg("Skipping control-channel message")
		observability.RecordError("malformed_event", "router")
		return KindUnknown
	}
	return r.Handle(ev)
}

// Handle routes one event and returns the kind it was treated as
func (r *Router) Handle(ev Event) Kind {
	kind := ev.Kind()
	observability.RecordEvent(string(kind))

	switch kind {
	case KindSessionReady:
		r.cfg.Logger.Debug().Str("type", ev.Type).Msg("Realtime session ready")

	case KindSpeechStarted:
		r.resetPartial()
		r.cfg.OnUpdate(kind)

	case KindSpeechStopped:
		// Completion, not the VAD boundary, produces the segment

	case KindTranscriptionDelta:
		r.partial.WriteString(ev.Delta)
		r.publishPartial()
		r.cfg.OnUpdate(kind)

	case KindTranscriptionCompleted:
		r.complete(ev.Transcript)
		r.cfg.OnUpdate(kind)

	case KindPlaybackDelta:
		if !r.playing.Swap(true) {
			r.cfg.OnUpdate(kind)
		}

	case KindPlaybackDone:
		if r.playing.Swap(false) {
			r.cfg.OnUpdate(kind)
		}

	case KindError:
		upstream := &UpstreamError{Message: "unknown error"}
		if ev.Error != nil {
			if ev.Error.Message != "" {
				upstream.Message = ev.Error.Message
			}
			upstream.Code = ev.Error.Code
		}
		r.cfg.Logger.Error().Str("code", upstream.Code).Msg(upstream.Message)
		r.cfg.OnError(upstream)

	default:
		r.cfg.Logger.Debug().Str("type", ev.Type).Msg("Ignoring unrecognized event")
	}
	return kind
}

func (r *Router) complete(text string) {
	r.resetPartial()

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	stamp := r.cfg.Now()
	if stamp.Before(r.lastStamp) {
		stamp = r.lastStamp
	}
	r.lastStamp = stamp

	seg := transcript.Segment{
		Speaker:   r.cfg.Speaker(),
		Text:      text,
		Timestamp: stamp,
	}
	r.cfg.Logger.Debug().
		Str("speaker", seg.Speaker.String()).
		Int("chars", len(seg.Text)).
		Msg("Transcript segment completed")
	r.cfg.OnSegment(seg)
}

func (r *Router) resetPartial() {
	r.partial.Reset()
	r.publishPartial()
}

func (r *Router) publishPartial() {
	r.mu.Lock()
	r.partialView = r.partial.String()
	r.mu.Unlock()
}

// Partial returns the in-progress transcription text
func (r *Router) Partial() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.partialView
}

// Playing reports whether remote audio is currently playing
func (r *Router) Playing() bool {
	return r.playing.Load()
}
