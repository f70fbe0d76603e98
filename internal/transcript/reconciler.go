package transcript

import (
	"strings"
	"sync"
)

// Fold merges segments into conversation entries in arrival order.
// Consecutive segments from the same speaker are joined with a single space;
// segments whose trimmed text is empty are dropped. Fold does not modify its input.
func Fold(segments []Segment) []Entry {
	var entries []Entry
	for _, seg := range segments {
		entries = apply(entries, seg)
	}
	return entries
}

// apply folds one segment into entries, mutating at most the tail entry
func apply(entries []Entry, seg Segment) []Entry {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return entries
	}

	if n := len(entries); n > 0 && entries[n-1].Speaker == seg.Speaker {
		tail := &entries[n-1]
		tail.Text = tail.Text + " " + text
		if seg.Timestamp.After(tail.LastTimestamp) {
			tail.LastTimestamp = seg.Timestamp
		}
		return entries
	}

	return append(entries, Entry{
		Speaker:        seg.Speaker,
		Text:           text,
		FirstTimestamp: seg.Timestamp,
		LastTimestamp:  seg.Timestamp,
	})
}

// Log is the conversation log owned by a recording session.
// Only Append and Reset mutate it; readers get copies.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewLog creates an empty conversation log
func NewLog() *Log {
	return &Log{}
}

// Append folds a segment into the log.
// Returns false if the segment was dropped because its text is empty.
func (l *Log) Append(seg Segment) bool {
	if strings.TrimSpace(seg.Text) == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = apply(l.entries, seg)
	return true
}

// Reset clears the log
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Entries returns a snapshot copy of the log
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Text renders the log as "Label: text" lines, the form consumed by the
// task-detection and note-generation services
func (l *Log) Text() string {
	return Render(l.Entries())
}

// Render formats entries as "Label: text" lines
func Render(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Speaker.Label())
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}
