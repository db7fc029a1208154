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
	"jinr.ru/greenlab/go-router/pkg/srv"
	"jinr.ru/greenlab/go-router/pkg/srv/control"
)

type ApiClient interface {
	Status() (*srv.Snapshot, error)
	// SendFrame encodes a frame on the server, parity is computed when nil
	SendFrame(destination int, payload []byte, parity *byte) (*control.SubmitResponse, error)
	SendStream(data []byte, gap bool) (*control.SubmitResponse, error)
	Drain(channel, max int) ([]byte, error)
	Reset() (*srv.Snapshot, error)
	Events(limit int) ([]*srv.EventRecord, error)
}
