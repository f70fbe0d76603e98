package gateway

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-scribe/internal/realtime"
	"github.com/lexiqai/voice-scribe/internal/recording"
	"github.com/lexiqai/voice-scribe/internal/transcript"
)

type fakeRecorder struct {
	mu        sync.Mutex
	state     recording.State
	speaker   transcript.Speaker
	entries   []transcript.Entry
	startErr  error
	starts    int
	stops     int
	updates   chan recording.Snapshot
	cancelled bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{state: recording.StateIdle, updates: make(chan recording.Snapshot, 1)}
}

func (f *fakeRecorder) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.state = recording.StateRecording
	return nil
}

func (f *fakeRecorder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = recording.StateIdle
}

func (f *fakeRecorder) ToggleSpeaker() (transcript.Speaker, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != recording.StateRecording {
		return f.speaker, false
	}
	f.speaker = f.speaker.Other()
	return f.speaker, true
}

func (f *fakeRecorder) SetSpeaker(speaker transcript.Speaker) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != recording.StateRecording {
		return false
	}
	f.speaker = speaker
	return true
}

func (f *fakeRecorder) Snapshot() recording.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recording.Snapshot{State: f.state, Speaker: f.speaker, Entries: append([]transcript.Entry{}, f.entries...)}
}

func (f *fakeRecorder) Subscribe() (<-chan recording.Snapshot, func()) {
	f.updates <- f.Snapshot()
	var once sync.Once
	return f.updates, func() {
		once.Do(func() {
			f.mu.Lock()
			f.cancelled = true
			f.mu.Unlock()
			close(f.updates)
		})
	}
}

func (f *fakeRecorder) Transcript() []transcript.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcript.Entry(nil), f.entries...)
}

func dial(t *testing.T, rec Recorder) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(NewHandler(context.Background(), rec, nil))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Every connection opens with the current snapshot
	first := read(t, conn)
	require.Equal(t, TypeSnapshot, first.Type)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readReply skips snapshots until the reply to id arrives
func readReply(t *testing.T, conn *websocket.Conn, id string) Message {
	t.Helper()
	for {
		msg := read(t, conn)
		if msg.ID == id {
			return msg
		}
	}
}

func TestFeed_StartAndStop(t *testing.T) {
	rec := newFakeRecorder()
	conn := dial(t, rec)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionStart, ID: "1"}))
	reply := readReply(t, conn, "1")
	assert.Equal(t, TypeAck, reply.Type)
	assert.Equal(t, ActionStart, reply.Action)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionStop, ID: "2"}))
	reply = readReply(t, conn, "2")
	assert.Equal(t, TypeAck, reply.Type)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.starts)
	assert.Equal(t, 1, rec.stops)
}

func TestFeed_StartFailureReportsKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
		op   string
	}{
		{"session active", recording.ErrSessionActive, ErrorKindSessionActive, ""},
		{"permission", &realtime.ConnectionError{Op: "microphone", Err: &realtime.PermissionError{Err: errors.New("denied")}}, ErrorKindPermission, "microphone"},
		{"handshake", &realtime.ConnectionError{Op: "handshake", Err: errors.New("status 500")}, ErrorKindConnection, "handshake"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newFakeRecorder()
			rec.startErr = tt.err
			conn := dial(t, rec)

			require.NoError(t, conn.WriteJSON(Command{Action: ActionStart, ID: "s"}))
			reply := readReply(t, conn, "s")
			require.Equal(t, TypeError, reply.Type)
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.kind, reply.Error.Kind)
			assert.Equal(t, tt.op, reply.Error.Op)
		})
	}
}

func TestFeed_ToggleSpeaker(t *testing.T) {
	rec := newFakeRecorder()
	conn := dial(t, rec)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionToggleSpeaker, ID: "idle"}))
	reply := readReply(t, conn, "idle")
	require.Equal(t, TypeError, reply.Type)
	assert.Equal(t, ErrorKindNotRecording, reply.Error.Kind)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionStart, ID: "start"}))
	readReply(t, conn, "start")

	require.NoError(t, conn.WriteJSON(Command{Action: ActionToggleSpeaker, ID: "toggle"}))
	reply = readReply(t, conn, "toggle")
	require.Equal(t, TypeAck, reply.Type)
	require.NotNil(t, reply.Speaker)
	assert.Equal(t, transcript.Patient, *reply.Speaker)
}

func TestFeed_SetSpeaker(t *testing.T) {
	rec := newFakeRecorder()
	conn := dial(t, rec)
	require.NoError(t, conn.WriteJSON(Command{Action: ActionStart, ID: "start"}))
	readReply(t, conn, "start")

	require.NoError(t, conn.WriteJSON(Command{Action: ActionSetSpeaker, ID: "bad", Speaker: "nurse"}))
	reply := readReply(t, conn, "bad")
	assert.Equal(t, ErrorKindBadRequest, reply.Error.Kind)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionSetSpeaker, ID: "ok", Speaker: "patient"}))
	reply = readReply(t, conn, "ok")
	require.Equal(t, TypeAck, reply.Type)
	assert.Equal(t, transcript.Patient, *reply.Speaker)
}

func TestFeed_Export(t *testing.T) {
	rec := newFakeRecorder()
	now := time.Now()
	rec.entries = []transcript.Entry{
		{Speaker: transcript.Doctor, Text: "What brings you in today?", FirstTimestamp: now, LastTimestamp: now},
		{Speaker: transcript.Patient, Text: "A persistent cough.", FirstTimestamp: now, LastTimestamp: now},
	}
	conn := dial(t, rec)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionExport, ID: "e"}))
	reply := readReply(t, conn, "e")
	require.Equal(t, TypeExport, reply.Type)
	require.NotNil(t, reply.Export)
	assert.True(t, reply.Export.Valid)
	assert.Equal(t, "Doctor: What brings you in today?\nPatient: A persistent cough.", reply.Export.Text)
	assert.Len(t, reply.Export.Entries, 2)
}

func TestFeed_ExportEmptyIsInvalid(t *testing.T) {
	conn := dial(t, newFakeRecorder())

	require.NoError(t, conn.WriteJSON(Command{Action: ActionExport, ID: "e"}))
	reply := readReply(t, conn, "e")
	require.NotNil(t, reply.Export)
	assert.False(t, reply.Export.Valid)
	assert.Contains(t, reply.Export.Reason, "empty")
	assert.NotNil(t, reply.Export.Entries)
}

func TestFeed_BadCommands(t *testing.T) {
	conn := dial(t, newFakeRecorder())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	reply := read(t, conn)
	require.Equal(t, TypeError, reply.Type)
	assert.Equal(t, ErrorKindBadRequest, reply.Error.Kind)

	require.NoError(t, conn.WriteJSON(Command{Action: "dance", ID: "x"}))
	reply = readReply(t, conn, "x")
	assert.Equal(t, ErrorKindBadRequest, reply.Error.Kind)
}

func TestFeed_PushesSnapshots(t *testing.T) {
	rec := newFakeRecorder()
	conn := dial(t, rec)

	rec.updates <- recording.Snapshot{State: recording.StateRecording, Partial: "I have"}
	msg := read(t, conn)
	require.Equal(t, TypeSnapshot, msg.Type)
	assert.Equal(t, recording.StateRecording, msg.Snapshot.State)
	assert.Equal(t, "I have", msg.Snapshot.Partial)
}

func TestFeed_DisconnectUnsubscribes(t *testing.T) {
	rec := newFakeRecorder()
	conn := dial(t, rec)
	conn.Close()

	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.cancelled
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 0, rec.stops, "closing the dashboard does not stop recording")
}
