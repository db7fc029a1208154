/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package buffer

const (
	DefaultCapacity = 16
)

// Buffer is a bounded byte FIFO holding the payload bytes routed to one channel.
// It also counts the cycles it has spent non-empty without being popped.
type Buffer struct {
	data  []byte
	head  int
	count int
	idle  int
}

// New creates an empty buffer. Non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		data: make([]byte, capacity),
	}
}

// Push appends b. It returns false and drops b when the buffer is full.
func (b *Buffer) Push(v byte) bool {
	if b.IsFull() {
		return false
	}
	if b.count == 0 {
		b.idle = 0
	}
	b.data[(b.head+b.count)%len(b.data)] = v
	b.count++
	return true
}

// Pop removes and returns the oldest byte. It panics on an empty buffer,
// callers check IsEmpty first.
func (b *Buffer) Pop() byte {
	if b.count == 0 {
		panic("buffer: pop from empty buffer")
	}
	v := b.data[b.head]
	b.head = (b.head + 1) % len(b.data)
	b.count--
	b.idle = 0
	return v
}

func (b *Buffer) IsEmpty() bool {
	return b.count == 0
}

func (b *Buffer) IsFull() bool {
	return b.count == len(b.data)
}

func (b *Buffer) Len() int {
	return b.count
}

func (b *Buffer) Cap() int {
	return len(b.data)
}

// Clear drops every byte and resets the idle counter.
func (b *Buffer) Clear() {
	b.head = 0
	b.count = 0
	b.idle = 0
}

// Tick advances the idle counter by one cycle if the buffer holds data.
func (b *Buffer) Tick() {
	if b.count > 0 {
		b.idle++
	}
}

// Idle returns the number of cycles since the last pop, or since the buffer
// went from empty to non-empty, whichever is later.
func (b *Buffer) Idle() int {
	return b.idle
}

// Snapshot returns a copy of the contents, oldest first.
func (b *Buffer) Snapshot() []byte {
	out := make([]byte, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)]
	}
	return out
}
