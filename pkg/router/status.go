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
)

type State int

const (
	StateIdle State = iota
	StateReceiving
	StateDispatching
	StateErrorReport
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateReceiving:
		return "RECEIVING"
	case StateDispatching:
		return "DISPATCHING"
	case StateErrorReport:
		return "ERROR_REPORT"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the externally visible flag set.
type Status struct {
	State State
	Busy  bool
	Error bool
	Valid [NumChannels]bool
}

// State derives the router state from the assembler and the pending verdict.
func (r *Router) State() State {
	switch {
	case r.pending != nil && (r.pending.ok || r.pending.frame.Destination == assembler.ReservedDestination):
		return StateDispatching
	case r.pending != nil:
		return StateErrorReport
	case r.asm.Active():
		return StateReceiving
	}
	return StateIdle
}

// Status recomputes the flags from the current state.
func (r *Router) Status() Status {
	st := Status{
		State: r.State(),
		Error: r.err,
	}
	st.Busy = st.State != StateIdle
	for c, buf := range r.buffers {
		st.Valid[c] = !buf.IsEmpty()
	}
	return st
}

// Received returns the number of payload bytes of the frame being assembled.
func (r *Router) Received() int {
	return r.asm.Received()
}

// Contents returns a copy of the bytes queued for channel c, oldest first.
func (r *Router) Contents(c int) ([]byte, error) {
	if c < 0 || c >= NumChannels {
		return nil, ErrChannel{Channel: c}
	}
	return r.buffers[c].Snapshot(), nil
}

// Occupancy returns the number of queued bytes per channel.
func (r *Router) Occupancy() [NumChannels]int {
	var occ [NumChannels]int
	for c, buf := range r.buffers {
		occ[c] = buf.Len()
	}
	return occ
}
