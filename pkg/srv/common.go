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

package srv

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"

	"jinr.ru/greenlab/go-router/pkg/config"
	"jinr.ru/greenlab/go-router/pkg/router"
)

type InPacket struct {
	Data []byte
	gopacket.CaptureInfo
}

// Burst is a run of bytes strobed into the router on consecutive cycles.
// When Gap is set the strobe is held low for one cycle after the last byte.
type Burst struct {
	Data   []byte
	Gap    bool
	Source string
}

// Snapshot is the router status published after every cycle
type Snapshot struct {
	Cycle     uint64                   `json:"cycle"`
	State     string                   `json:"state"`
	Busy      bool                     `json:"busy"`
	Error     bool                     `json:"error"`
	Valid     [router.NumChannels]bool `json:"valid"`
	Occupancy [router.NumChannels]int  `json:"occupancy"`
	Received  int                      `json:"received"` // payload bytes of the frame in progress
	Queued    int                      `json:"queued"`
}

// EventRecord is a router event as stored in the event state
type EventRecord struct {
	router.Event
	Time uint64 `json:"time"` // milliseconds since epoch
}

// GetAddr returns the UDPAddr of the peer that sent the packet
func GetAddr(packet gopacket.Packet) (*net.UDPAddr, error) {
	meta := packet.Metadata()
	if len(meta.CaptureInfo.AncillaryData) >= 1 {
		udpAddr, ok := meta.CaptureInfo.AncillaryData[0].(*net.UDPAddr)
		if !ok {
			return nil, ErrGetAddr{}
		}
		return udpAddr, nil
	}
	return nil, ErrGetAddr{}
}

type Server struct {
	context.Context
	*config.Config
	*net.UDPAddr
	ChIn chan InPacket
}

// ReadPacketData reads ChIn channel and returns packet data and metadata.
// This method is from PacketDataSource interface. It returns io.EOF once the
// server context is done so that packet sources stop.
func (s *Server) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	select {
	case p := <-s.ChIn:
		return p.Data, p.CaptureInfo, nil
	case <-s.Context.Done():
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
}

func Now() uint64 {
	return uint64(time.Now().UnixNano() / int64(time.Millisecond))
}
