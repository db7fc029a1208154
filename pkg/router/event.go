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
)

type EventKind string

const (
	EventDispatched   EventKind = "dispatched"
	EventParityError  EventKind = "parity_error"
	EventOverflow     EventKind = "overflow"
	EventAbsorbed     EventKind = "absorbed"
	EventTimeoutClear EventKind = "timeout_clear"
	EventAborted      EventKind = "aborted"
	EventReset        EventKind = "reset"
)

// NoChannel marks events that are not tied to a destination.
const NoChannel = -1

// Event records something the router did during a cycle.
// Length counts payload bytes for frame events and cleared bytes for timeouts.
type Event struct {
	Cycle   uint64    `json:"cycle"`
	Kind    EventKind `json:"kind"`
	Channel int       `json:"channel"`
	Length  int       `json:"length"`
	Header  byte      `json:"header"`
}

func (e Event) String() string {
	if e.Channel == NoChannel {
		return fmt.Sprintf("cycle %d: %s", e.Cycle, e.Kind)
	}
	return fmt.Sprintf("cycle %d: %s channel %d length %d", e.Cycle, e.Kind, e.Channel, e.Length)
}

// Fault reports whether the event sets the latched error.
func (e Event) Fault() bool {
	return e.Kind == EventParityError || e.Kind == EventOverflow
}

// ErrChannel is returned for a channel number outside 0..NumChannels-1.
type ErrChannel struct {
	Channel int
}

func (e ErrChannel) Error() string {
	return fmt.Sprintf("channel %d out of range 0..%d", e.Channel, NumChannels-1)
}
