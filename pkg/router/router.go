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

package router

import (
	"fmt"

	"jinr.ru/greenlab/go-router/pkg/assembler"
	"jinr.ru/greenlab/go-router/pkg/buffer"
	"jinr.ru/greenlab/go-router/pkg/parity"
)

const (
	NumChannels          = 3
	DefaultTimeoutCycles = 30
)

// Config holds the policy constants of a router instance.
type Config struct {
	LengthBits int
	Capacity   [NumChannels]int
	// TimeoutCycles is the number of cycles a non-empty buffer may go without
	// a pop before it is cleared. Zero disables the soft reset.
	TimeoutCycles int
	StrobePolicy  assembler.StrobePolicy
}

func DefaultConfig() Config {
	return Config{
		LengthBits:    assembler.DefaultLengthBits,
		Capacity:      [NumChannels]int{buffer.DefaultCapacity, buffer.DefaultCapacity, buffer.DefaultCapacity},
		TimeoutCycles: DefaultTimeoutCycles,
		StrobePolicy:  assembler.PolicyAbort,
	}
}

// Inputs are the boundary signals sampled once per cycle.
type Inputs struct {
	Enable     bool
	Reset      bool
	Strobe     bool
	Byte       byte
	ReadEnable [NumChannels]bool
}

// Outputs are the boundary signals after a cycle.
type Outputs struct {
	Cycle     uint64
	Busy      bool
	Error     bool
	Valid     [NumChannels]bool
	Data      [NumChannels]byte
	DataValid [NumChannels]bool
	Events    []Event
}

// verdict is a completed frame waiting for its dispatch cycle.
type verdict struct {
	frame *assembler.Frame
	ok    bool
}

// Router demultiplexes framed bytes into three bounded channel buffers.
// It is not safe for concurrent use, one goroutine drives Tick.
type Router struct {
	cfg     Config
	asm     *assembler.Assembler
	buffers [NumChannels]*buffer.Buffer
	pending *verdict
	err     bool
	cycle   uint64
	last    Outputs
}

func New(cfg Config) (*Router, error) {
	if cfg.TimeoutCycles < 0 {
		return nil, fmt.Errorf("negative timeout: %d", cfg.TimeoutCycles)
	}
	asm, err := assembler.New(cfg.LengthBits, cfg.StrobePolicy)
	if err != nil {
		return nil, err
	}
	r := &Router{
		cfg: cfg,
		asm: asm,
	}
	for c := 0; c < NumChannels; c++ {
		if cfg.Capacity[c] <= 0 {
			return nil, fmt.Errorf("channel %d: capacity must be positive, got %d", c, cfg.Capacity[c])
		}
		r.buffers[c] = buffer.New(cfg.Capacity[c])
	}
	return r, nil
}

// MaxPayload is the longest payload the header length field can declare.
func (c Config) MaxPayload() int {
	return 1<<c.LengthBits - 1
}

func (r *Router) Config() Config {
	return r.cfg
}

// Cycle returns the number of enabled cycles since construction.
func (r *Router) Cycle() uint64 {
	return r.cycle
}

// Tick advances the router by one cycle.
func (r *Router) Tick(in Inputs) Outputs {
	if in.Reset {
		r.cycle++
		r.reset()
		out := r.outputs()
		out.Events = []Event{{Cycle: r.cycle, Kind: EventReset, Channel: NoChannel}}
		r.last = out
		return out
	}
	if !in.Enable {
		out := r.last
		out.Events = nil
		return out
	}

	r.cycle++
	var events []Event
	var data [NumChannels]byte
	var dataValid [NumChannels]bool

	for c, buf := range r.buffers {
		if in.ReadEnable[c] && !buf.IsEmpty() {
			data[c] = buf.Pop()
			dataValid[c] = true
		}
	}

	for c, buf := range r.buffers {
		buf.Tick()
		if r.cfg.TimeoutCycles > 0 && buf.Idle() > r.cfg.TimeoutCycles {
			events = append(events, Event{Cycle: r.cycle, Kind: EventTimeoutClear, Channel: c, Length: buf.Len()})
			buf.Clear()
		}
	}

	if r.pending != nil {
		events = append(events, r.apply(r.pending)...)
		r.pending = nil
	}

	frame, aborted := r.asm.Step(in.Strobe, in.Byte)
	if aborted {
		events = append(events, Event{Cycle: r.cycle, Kind: EventAborted, Channel: NoChannel})
	}
	if frame != nil {
		r.OnFrameComplete(frame)
	}

	out := r.outputs()
	out.Data = data
	out.DataValid = dataValid
	out.Events = events
	r.last = out
	return out
}

// OnFrameComplete checks the parity of a completed frame and schedules it
// for dispatch on the next cycle.
func (r *Router) OnFrameComplete(f *assembler.Frame) {
	r.pending = &verdict{
		frame: f,
		ok:    parity.Verify(f.Checked(), f.Parity),
	}
}

func (r *Router) apply(v *verdict) []Event {
	f := v.frame
	// reserved frames never touch the error flag, whatever their parity
	if f.Destination == assembler.ReservedDestination {
		return []Event{{Cycle: r.cycle, Kind: EventAbsorbed, Channel: f.Destination, Length: f.Length, Header: f.Header}}
	}
	if !v.ok {
		r.err = true
		return []Event{{Cycle: r.cycle, Kind: EventParityError, Channel: f.Destination, Length: f.Length, Header: f.Header}}
	}

	buf := r.buffers[f.Destination]
	dropped := 0
	for _, b := range f.Payload {
		if !buf.Push(b) {
			dropped++
		}
	}
	r.err = dropped > 0
	events := []Event{{Cycle: r.cycle, Kind: EventDispatched, Channel: f.Destination, Length: f.Length - dropped, Header: f.Header}}
	if dropped > 0 {
		events = append(events, Event{Cycle: r.cycle, Kind: EventOverflow, Channel: f.Destination, Length: dropped, Header: f.Header})
	}
	return events
}

func (r *Router) reset() {
	r.asm.Reset()
	for _, buf := range r.buffers {
		buf.Clear()
	}
	r.pending = nil
	r.err = false
}

func (r *Router) outputs() Outputs {
	st := r.Status()
	return Outputs{
		Cycle: r.cycle,
		Busy:  st.Busy,
		Error: st.Error,
		Valid: st.Valid,
	}
}
