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

package ifc

import (
	"context"
	"net/http"

	"jinr.ru/greenlab/go-router/pkg/srv"
)

type ControlServer interface {
	Run() error
	// Clock advances the router every cycle period until ctx is done
	Clock(ctx context.Context) error
	Step()

	// Submit queues a burst without blocking, Feed waits for room in the queue
	Submit(burst srv.Burst) error
	Feed(ctx context.Context, burst srv.Burst) error

	Drain(ctx context.Context, channel, max int) ([]byte, error)
	Reset(ctx context.Context) error
	// MaxPayload is the longest frame payload the configured length field can declare
	MaxPayload() int
	Status() srv.Snapshot
	Events(limit int) ([]*srv.EventRecord, error)
}

type ApiServer interface {
	Run() error
	Handler() http.Handler
}
