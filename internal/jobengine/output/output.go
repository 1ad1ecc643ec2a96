// Package output provides the append-only buffer backing a Job's combined
// stdout/stderr. A single writer appends chunks; any number of concurrent
// readers take copy-on-read views, either of the full content or of
// everything past a byte offset they have already consumed.
package output

import (
	"sync"
)

const (
	// initialBufferCapacity is the starting size for the output buffer.
	// 4KB seems like a reasonable default.
	initialBufferCapacity = 4096
)

// Buffer is an append-only byte sequence with monotonic offsets. Offsets are
// never rewritten, so a reader that consumed through offset N can always
// resume at N without loss or duplication.
type Buffer struct {
	// NOTE: the buffer grows indefinitely with no upper bound. The assumption
	// is that 'everything will fit in memory'. In a production system with
	// very chatty automations we'd want to spill to disk.
	data   []byte
	closed bool

	mu sync.Mutex
}

// NewBuffer creates an empty Buffer ready for appends.
func NewBuffer() *Buffer {
	return &Buffer{
		data: make([]byte, 0, initialBufferCapacity),
	}
}

// Append adds a chunk to the end of the buffer and returns the new end
// offset, i.e. the offset just past the appended bytes. Appends after Close
// are dropped.
func (b *Buffer) Append(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || len(p) == 0 {
		return len(b.data)
	}

	b.data = append(b.data, p...)

	return len(b.data)
}

// AppendString adds a string chunk to the end of the buffer and returns the
// new end offset.
func (b *Buffer) AppendString(s string) int {
	return b.Append([]byte(s))
}

// Close marks the buffer complete. No further appends are accepted.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
}

// Len returns the current end offset, i.e. the total number of bytes
// appended so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.data)
}

// String returns a copy of the full content.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return string(b.data)
}

// ReadFrom returns a copy of everything appended at or after offset, along
// with the offset just past the returned data. Offsets outside the valid
// range are clamped, so a stale or negative offset can never panic.
func (b *Buffer) ReadFrom(offset int) (chunk []byte, next int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset < 0 {
		offset = 0
	}

	if offset >= len(b.data) {
		return nil, len(b.data)
	}

	chunk = make([]byte, len(b.data)-offset)
	copy(chunk, b.data[offset:])

	return chunk, len(b.data)
}
