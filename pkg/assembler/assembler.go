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

package assembler

import (
	"fmt"
)

const (
	// NumDestinations is the number of addressable destinations including the reserved one.
	NumDestinations = 4
	// ReservedDestination is accepted by framing but never dispatched.
	ReservedDestination = 3
	// DefaultLengthBits is the width of the length field in the header byte.
	DefaultLengthBits = 6
	destinationMask   = 0x03
)

type State int

const (
	StateIdle State = iota
	StateHeader
	StatePayload
	StateParity
	// StateDone is never observed between steps: the frame is returned by the
	// Step that consumes the parity byte and the assembler is already IDLE.
	StateDone
)

var stateNames = map[State]string{
	StateIdle:    "IDLE",
	StateHeader:  "HEADER",
	StatePayload: "PAYLOAD",
	StateParity:  "PARITY",
	StateDone:    "DONE",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StrobePolicy tells the assembler what to do when the strobe drops mid-frame.
type StrobePolicy int

const (
	// PolicyAbort discards the partial frame and returns to IDLE.
	PolicyAbort StrobePolicy = iota
	// PolicyStall keeps the partial frame and resumes on the next strobe.
	PolicyStall
)

func (p StrobePolicy) String() string {
	if p == PolicyStall {
		return "stall"
	}
	return "abort"
}

// ParseStrobePolicy accepts "abort" (or empty) and "stall".
func ParseStrobePolicy(s string) (StrobePolicy, error) {
	switch s {
	case "", "abort":
		return PolicyAbort, nil
	case "stall":
		return PolicyStall, nil
	}
	return PolicyAbort, fmt.Errorf("unknown strobe policy %q: must be abort or stall", s)
}

// Frame is one complete header+payload+parity unit.
type Frame struct {
	Header      byte
	Destination int
	Length      int
	Payload     []byte
	Parity      byte
}

// Checked returns the bytes covered by the parity byte: header followed by payload.
func (f *Frame) Checked() []byte {
	out := make([]byte, 0, len(f.Payload)+1)
	out = append(out, f.Header)
	return append(out, f.Payload...)
}

// Assembler turns a strobed byte stream into frames, one byte per Step.
type Assembler struct {
	lengthMask byte
	policy     StrobePolicy
	state      State
	frame      *Frame
}

// New creates an assembler for the given length field width (1..6 bits).
func New(lengthBits int, policy StrobePolicy) (*Assembler, error) {
	if lengthBits < 1 || lengthBits > 6 {
		return nil, fmt.Errorf("length field width %d out of range 1..6", lengthBits)
	}
	return &Assembler{
		lengthMask: byte(1<<lengthBits - 1),
		policy:     policy,
		state:      StateIdle,
	}, nil
}

func (a *Assembler) State() State {
	return a.state
}

// Active reports whether a frame is partially assembled.
func (a *Assembler) Active() bool {
	return a.state != StateIdle
}

// Received returns the number of payload bytes accumulated so far.
func (a *Assembler) Received() int {
	if a.frame == nil {
		return 0
	}
	return len(a.frame.Payload)
}

// Reset discards any partial frame.
func (a *Assembler) Reset() {
	a.state = StateIdle
	a.frame = nil
}

// Step consumes one cycle of input. It returns the completed frame on the cycle
// the parity byte is consumed. aborted is true when a partial frame was dropped
// because the strobe fell under PolicyAbort.
func (a *Assembler) Step(strobe bool, b byte) (frame *Frame, aborted bool) {
	if !strobe {
		if a.state != StateIdle && a.policy == PolicyAbort {
			a.Reset()
			return nil, true
		}
		return nil, false
	}

	switch a.state {
	case StateIdle:
		a.state = StateHeader
		a.header(b)
	case StatePayload:
		a.frame.Payload = append(a.frame.Payload, b)
		if len(a.frame.Payload) == a.frame.Length {
			a.state = StateParity
		}
	case StateParity:
		a.frame.Parity = b
		done := a.frame
		a.Reset()
		return done, false
	}
	return nil, false
}

// header decodes the header byte and moves on to PAYLOAD or PARITY.
func (a *Assembler) header(b byte) {
	length := int((b >> 2) & a.lengthMask)
	a.frame = &Frame{
		Header:      b,
		Destination: int(b & destinationMask),
		Length:      length,
		Payload:     make([]byte, 0, length),
	}
	if length > 0 {
		a.state = StatePayload
	} else {
		a.state = StateParity
	}
}
