package audio

import (
	"sync"
)

// SampleBuffer is a thread-safe ring buffer of PCM samples used as the
// playback jitter buffer between the network and the output device.
// When full, writes overwrite the oldest samples so playback latency stays bounded.
type SampleBuffer struct {
	mu      sync.Mutex
	buffer  []int16
	read    int
	count   int
	dropped int64
}

// NewSampleBuffer creates a ring buffer holding up to capacity samples
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &SampleBuffer{
		buffer: make([]int16, capacity),
	}
}

// Write appends samples, overwriting the oldest data on overflow.
// Returns the number of previously buffered samples that were discarded.
func (sb *SampleBuffer) Write(samples []int16) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	size := len(sb.buffer)
	overwritten := 0
	for _, s := range samples {
		write := (sb.read + sb.count) % size
		sb.buffer[write] = s
		if sb.count == size {
			// Full: the write replaced the oldest sample
			sb.read = (sb.read + 1) % size
			overwritten++
		} else {
			sb.count++
		}
	}
	sb.dropped += int64(overwritten)
	return overwritten
}

// Read copies up to len(out) samples into out and returns how many were read
func (sb *SampleBuffer) Read(out []int16) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	n := len(out)
	if n > sb.count {
		n = sb.count
	}
	size := len(sb.buffer)
	for i := 0; i < n; i++ {
		out[i] = sb.buffer[(sb.read+i)%size]
	}
	sb.read = (sb.read + n) % size
	sb.count -= n
	return n
}

// Available returns the number of buffered samples
func (sb *SampleBuffer) Available() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.count
}

// Dropped returns the total number of samples lost to overflow
func (sb *SampleBuffer) Dropped() int64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.dropped
}

// Clear discards all buffered samples
func (sb *SampleBuffer) Clear() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.read = 0
	sb.count = 0
}
