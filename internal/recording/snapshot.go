package recording

import "github.com/lexiqai/voice-scribe/internal/transcript"

// Snapshot is an immutable view of the controller for presentation
type Snapshot struct {
	Version   uint64             `json:"version"`
	State     State              `json:"state"`
	SessionID string             `json:"session_id,omitempty"`
	Speaker   transcript.Speaker `json:"speaker"`
	Entries   []transcript.Entry `json:"entries"`
	Partial   string             `json:"partial,omitempty"`
	Playing   bool               `json:"playing"`
	Error     string             `json:"error,omitempty"`
}

// Snapshot captures the current state. Entries is a copy.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:     c.state,
		SessionID: c.sessionID,
		Speaker:   c.speaker,
	}
	if c.lastErr != nil {
		snap.Error = c.lastErr.Error()
	}
	router := c.router
	c.mu.Unlock()

	if router != nil {
		snap.Partial = router.Partial()
		snap.Playing = router.Playing()
	}
	snap.Entries = c.log.Entries()
	if snap.Entries == nil {
		snap.Entries = []transcript.Entry{}
	}
	return snap
}

// Subscribe returns a channel that always holds the latest snapshot.
// Slow readers skip intermediate snapshots. Call cancel to unsubscribe.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.version++
	snap := c.Snapshot()
	snap.Version = c.version
	ch <- snap
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// notify publishes a fresh snapshot to every subscriber.
// Must not be called with c.mu held.
func (c *Controller) notify() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if len(c.subs) == 0 {
		return
	}

	c.version++
	snap := c.Snapshot()
	snap.Version = c.version
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
