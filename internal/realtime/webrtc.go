package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/voice-scribe/internal/audio"
	"github.com/lexiqai/voice-scribe/internal/observability"
)

const (
	// G.711 PCMU keeps the media path free of native codecs
	pcmuSampleRate  = 8000
	pcmuPayloadType = 0

	eventsChannelLabel = "oai-events"
	rtpBufferSize      = 1500
	maxReadErrors      = 50
)

// WebRTCConfig configures the peer connection and handshake
type WebRTCConfig struct {
	ICEServers     []string
	EventQueueSize int
}

// WebRTCTransport is a Transport over a WebRTC peer connection:
// microphone audio on a PCMU track, remote audio on the returned track,
// and control events on the "oai-events" data channel.
type WebRTCTransport struct {
	SpeakerState

	cfg         WebRTCConfig
	credentials CredentialSource
	handshaker  *Handshaker
	openSource  audio.SourceOpener
	openSink    audio.SinkOpener
	queue       *EventQueue
	logger      zerolog.Logger

	mu      sync.Mutex
	closed  bool
	started bool
	pc      *webrtc.PeerConnection
	dc      *webrtc.DataChannel
	source  audio.Source
	sink    audio.Sink
	cancel  context.CancelFunc
	workers sync.WaitGroup // Guarded by mu for Add; never added to after close
}

// NewWebRTCTransport creates an uninitialized transport
func NewWebRTCTransport(
	cfg WebRTCConfig,
	credentials CredentialSource,
	handshaker *Handshaker,
	openSource audio.SourceOpener,
	openSink audio.SinkOpener,
	logger zerolog.Logger,
) *WebRTCTransport {
	return &WebRTCTransport{
		cfg:         cfg,
		credentials: credentials,
		handshaker:  handshaker,
		openSource:  openSource,
		openSink:    openSink,
		queue:       NewEventQueue(cfg.EventQueueSize),
		logger:      logger.With().Str("component", "webrtc_transport").Logger(),
	}
}

// Init establishes the session. On failure everything acquired so far is
// released and the transport is closed.
func (t *WebRTCTransport) Init(ctx context.Context) error {
	t.mu.Lock()
	if t.closed || t.started {
		t.mu.Unlock()
		return &ConnectionError{Op: "init", Err: ErrTransportClosed}
	}
	t.started = true
	t.mu.Unlock()

	if err := t.init(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			t.logger.Debug().Err(err).Msg("Init interrupted")
			err = ctxErr
		}
		if dErr := t.Disconnect(); dErr != nil {
			t.logger.Warn().Err(dErr).Msg("Cleanup after failed init reported errors")
		}
		return AsConnectionError("init", err)
	}
	return nil
}

func (t *WebRTCTransport) init(ctx context.Context) error {
	var credential string

	// Credential and microphone are independent; acquire them together
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		secret, err := t.credentials.Fetch(gctx)
		if err != nil {
			return err
		}
		credential = secret
		return nil
	})
	g.Go(func() error {
		source, err := t.openSource()
		if err != nil {
			return &PermissionError{Err: err}
		}
		if !t.adopt(func() { t.source = source }) {
			source.Close()
			return ErrTransportClosed
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	sink, err := t.openSink()
	if err != nil {
		return &ConnectionError{Op: "audio output", Err: err}
	}
	if !t.adopt(func() { t.sink = sink }) {
		sink.Close()
		return ErrTransportClosed
	}

	track, err := t.createPeerConnection()
	if err != nil {
		return &ConnectionError{Op: "peer connection", Err: err}
	}

	answer, err := t.negotiate(ctx, credential)
	if err != nil {
		return err
	}

	t.mu.Lock()
	pc, source := t.pc, t.source
	t.mu.Unlock()
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return &ConnectionError{Op: "handshake", Err: fmt.Errorf("failed to apply answer: %w", err)}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	if !t.adopt(func() {
		t.cancel = cancel
		t.workers.Add(1)
	}) {
		cancel()
		return ErrTransportClosed
	}
	go t.pumpMicrophone(pumpCtx, source, track)

	t.logger.Info().Msg("Realtime session established")
	return nil
}

// adopt records an acquired resource unless the transport already closed
func (t *WebRTCTransport) adopt(set func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	set()
	return true
}

func (t *WebRTCTransport) createPeerConnection() (*webrtc.TrackLocalStaticSample, error) {
	pcmu := webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: pcmuSampleRate,
		Channels:  1,
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: pcmu,
		PayloadType:        pcmuPayloadType,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register PCMU codec: %w", err)
	}

	// Default interceptors include NACK and RTCP reports
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	var pcConfig webrtc.Configuration
	if len(t.cfg.ICEServers) > 0 {
		pcConfig.ICEServers = []webrtc.ICEServer{{URLs: t.cfg.ICEServers}}
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	if !t.adopt(func() { t.pc = pc }) {
		pc.Close()
		return nil, ErrTransportClosed
	}

	track, err := webrtc.NewTrackLocalStaticSample(pcmu, "audio", "voice-scribe")
	if err != nil {
		return nil, fmt.Errorf("failed to create local audio track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	// RTCP must be drained for the interceptors to run
	if !t.adopt(func() { t.workers.Add(1) }) {
		return nil, ErrTransportClosed
	}
	go func() {
		defer t.workers.Done()
		buf := make([]byte, rtpBufferSize)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	if err := t.openEventsChannel(pc); err != nil {
		return nil, err
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if !t.adopt(func() { t.workers.Add(1) }) {
			return
		}

		t.logger.Info().Str("codec", remote.Codec().MimeType).Msg("Remote audio track received")
		go t.readRemoteAudio(remote)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Info().Str("state", state.String()).Msg("Peer connection state changed")
		switch state {
		case webrtc.PeerConnectionStateFailed:
			t.fail(&ConnectionError{Op: "media", Err: errors.New("peer connection failed")})
		case webrtc.PeerConnectionStateDisconnected:
			// Transient; ICE may recover on its own
			t.logger.Warn().Msg("Peer connection disconnected")
		}
	})

	return track, nil
}

// openEventsChannel creates the control channel whose messages feed the queue
func (t *WebRTCTransport) openEventsChannel(pc *webrtc.PeerConnection) error {
	dc, err := pc.CreateDataChannel(eventsChannelLabel, nil)
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	if !t.adopt(func() { t.dc = dc }) {
		dc.Close()
		return ErrTransportClosed
	}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.handleMessage(msg.Data)
	})
	dc.OnClose(func() {
		if !t.isClosed() {
			t.fail(&ConnectionError{Op: "control channel", Err: errors.New("closed by remote")})
		}
	})
	return nil
}

// negotiate creates the offer, waits for ICE gathering and exchanges SDP
func (t *WebRTCTransport) negotiate(ctx context.Context, credential string) (string, error) {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", &ConnectionError{Op: "handshake", Err: fmt.Errorf("failed to create offer: %w", err)}
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", &ConnectionError{Op: "handshake", Err: fmt.Errorf("failed to set local description: %w", err)}
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", AsConnectionError("ice gathering", ctx.Err())
	}

	return t.handshaker.Exchange(ctx, credential, pc.LocalDescription().SDP)
}

func (t *WebRTCTransport) handleMessage(data []byte) {
	ev, err := DecodeEvent(data)
	if err != nil {
		t.logger.Warn().Err(err).Int("bytes", len(data)).Msg("Skipping control-channel message")
		observability.RecordError("malformed_event", "webrtc_transport")
		return
	}
	t.queue.Push(ev)
}

// pumpMicrophone encodes captured frames onto the outbound track
func (t *WebRTCTransport) pumpMicrophone(ctx context.Context, source audio.Source, track *webrtc.TrackLocalStaticSample) {
	defer t.workers.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source.Frames():
			if !ok {
				return
			}
			pcm := audio.Resample(frame, source.SampleRate(), pcmuSampleRate)
			if len(pcm) == 0 {
				continue
			}
			payload := audio.EncodePCMU(pcm)
			if err := track.WriteSample(media.Sample{
				Data:     payload,
				Duration: audio.FrameDuration(len(pcm), pcmuSampleRate),
			}); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return
				}
				t.logger.Debug().Err(err).Msg("Failed to write sample to track")
				continue
			}
			observability.RecordAudioBytes("out", int64(len(payload)))
		}
	}
}

// readRemoteAudio decodes the remote PCMU track into the sink
func (t *WebRTCTransport) readRemoteAudio(remote *webrtc.TrackRemote) {
	defer t.workers.Done()

	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return
	}

	if mime := remote.Codec().MimeType; mime != webrtc.MimeTypePCMU {
		t.logger.Error().Str("codec", mime).Msg("Unsupported remote codec, only PCMU is supported")
		return
	}

	buf := make([]byte, rtpBufferSize)
	consecutiveErrors := 0
	for {
		n, _, err := remote.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) || t.isClosed() {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= maxReadErrors {
				t.logger.Error().Err(err).Msg("Too many consecutive read errors, stopping remote audio")
				return
			}
			continue
		}
		consecutiveErrors = 0

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			t.logger.Debug().Err(err).Msg("Failed to unmarshal RTP packet")
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		observability.RecordAudioBytes("in", int64(len(pkt.Payload)))

		pcm := audio.Resample(audio.DecodePCMU(pkt.Payload), pcmuSampleRate, sink.SampleRate())
		if err := sink.Write(pcm); err != nil {
			t.logger.Debug().Err(err).Msg("Remote audio dropped")
		}
	}
}

// fail records a fatal failure and closes the event stream
func (t *WebRTCTransport) fail(err error) {
	t.logger.Error().Err(err).Msg("Realtime transport failed")
	observability.RecordError("transport_failed", "webrtc_transport")
	t.queue.Close(err)
}

func (t *WebRTCTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Events returns the inbound control-channel events
func (t *WebRTCTransport) Events() <-chan Event {
	return t.queue.Events()
}

// Err returns the fatal failure that closed Events, if any
func (t *WebRTCTransport) Err() error {
	return t.queue.Err()
}

// Disconnect tears down the session. Safe to call repeatedly.
func (t *WebRTCTransport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	pc, dc, source, sink, cancel := t.pc, t.dc, t.source, t.sink, t.cancel
	t.mu.Unlock()

	// Unblock callbacks waiting on a full queue before closing the connection
	t.queue.Close(nil)
	if cancel != nil {
		cancel()
	}

	var errs []error
	if dc != nil {
		if err := dc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data channel: %w", err))
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close peer connection: %w", err))
		}
	}
	if source != nil {
		if err := source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release microphone: %w", err))
		}
	}

	t.workers.Wait()

	if sink != nil {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release audio output: %w", err))
		}
	}

	t.logger.Info().Msg("Realtime session disconnected")
	return errors.Join(errs...)
}
