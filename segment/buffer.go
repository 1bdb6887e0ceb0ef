// Package segment maintains a rolling on-disk buffer of short stream
// segments so a clip can reach back in time when a trigger fires.
package segment

import (
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backend/telemetry"
)

// Ref identifies one recorded segment file.
type Ref struct {
	Path      string
	Seq       int
	CreatedAt time.Time
}

// Buffer is a bounded FIFO of segment refs. Pushing past capacity evicts the
// oldest entry and deletes its file. Safe for concurrent use: the recorder
// pushes while the clip actuator reads.
type Buffer struct {
	mu       sync.Mutex
	streamer string
	capacity int
	segDur   time.Duration
	entries  []Ref

	// removeFn deletes an evicted segment file; tests swap it out.
	removeFn func(path string) error
}

// NewBuffer creates a buffer holding at most capacity segments of segDur each.
func NewBuffer(streamer string, capacity int, segDur time.Duration) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		streamer: streamer,
		capacity: capacity,
		segDur:   segDur,
		removeFn: os.Remove,
	}
}

// Push appends a segment, evicting and deleting the oldest one when full.
func (b *Buffer) Push(ref Ref) {
	b.mu.Lock()
	b.entries = append(b.entries, ref)
	var evicted *Ref
	if len(b.entries) > b.capacity {
		evicted = &b.entries[0]
		old := *evicted
		b.entries = append(b.entries[:0], b.entries[1:]...)
		evicted = &old
	}
	n := len(b.entries)
	b.mu.Unlock()

	if evicted != nil {
		if err := b.removeFn(evicted.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("segment delete failed", slog.String("path", evicted.Path), slog.Any("err", err))
		}
	}
	if telemetry.SegmentsBuffered != nil {
		telemetry.SegmentsBuffered.WithLabelValues(b.streamer).Set(float64(n))
	}
}

// RecentCovering returns the newest segments whose combined duration covers d,
// oldest first, plus one extra for boundary slack. Returns everything when the
// buffer holds less than that.
func (b *Buffer) RecentCovering(d time.Duration) []Ref {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	want := 1
	if b.segDur > 0 {
		want = int(math.Ceil(d.Seconds()/b.segDur.Seconds())) + 1
	}
	if want < 1 {
		want = 1
	}
	if want > len(b.entries) {
		want = len(b.entries)
	}
	out := make([]Ref, want)
	copy(out, b.entries[len(b.entries)-want:])
	return out
}

// Len returns the number of buffered segments.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear drops all refs without deleting files.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.entries = b.entries[:0]
	b.mu.Unlock()
	if telemetry.SegmentsBuffered != nil {
		telemetry.SegmentsBuffered.WithLabelValues(b.streamer).Set(0)
	}
}

// SegmentDuration returns the nominal duration of one segment.
func (b *Buffer) SegmentDuration() time.Duration { return b.segDur }
