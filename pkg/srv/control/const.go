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

package control

const (
	// EventsBucket holds every router event keyed by sequence number
	EventsBucket = "events"
	// DefaultEventsLimit is used when an events request does not set a limit
	DefaultEventsLimit = 100
	// MaxEventsLimit bounds a single events request
	MaxEventsLimit = 10000
	// UdpBufferSize is the largest datagram accepted by the UDP ingest
	UdpBufferSize = 65536
	// SerialReadSize is the chunk size used when reading the serial line
	SerialReadSize = 256
)

const (
	SourceApi    = "api"
	SourceUdp    = "udp"
	SourceSerial = "serial"
)
