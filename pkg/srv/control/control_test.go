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

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-router/pkg/config"
	"jinr.ru/greenlab/go-router/pkg/layers"
	"jinr.ru/greenlab/go-router/pkg/router"
	"jinr.ru/greenlab/go-router/pkg/srv"
)

func newTestConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), config.DBFile)
	cfg.UdpPort = 0
	cfg.Router.TimeoutCycles = 0
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *ControlServer {
	s, err := NewControlServer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func steps(s *ControlServer, n int) {
	for i := 0; i < n; i++ {
		s.Step()
	}
}

// stepUntil runs the clock by hand until done is closed
func stepUntil(t *testing.T, s *ControlServer, done <-chan struct{}) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-done:
			return
		default:
		}
		s.Step()
		time.Sleep(100 * time.Microsecond)
	}
	t.Fatal("timeout while stepping the router")
}

func drain(t *testing.T, s *ControlServer, channel, max int) []byte {
	var data []byte
	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		data, err = s.Drain(context.Background(), channel, max)
	}()
	stepUntil(t, s, done)
	require.NoError(t, err)
	return data
}

func TestNewControlServerStartsFromReset(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	st := s.Status()
	assert.Equal(t, uint64(1), st.Cycle)
	assert.Equal(t, router.StateIdle.String(), st.State)
	assert.False(t, st.Busy)
	assert.False(t, st.Error)
	assert.Equal(t, [router.NumChannels]bool{}, st.Valid)

	events, err := s.Events(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, router.EventReset, events[0].Kind)
}

func TestNewControlServerWrongConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Router.LengthBits = 5
	_, err := NewControlServer(context.Background(), cfg)
	assert.ErrorAs(t, err, &config.ErrInvalidConfig{})
}

func TestStepDispatchesBurst(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x08, 0xAA, 0x55, 0xF7}, Gap: true}))
	steps(s, 4)
	st := s.Status()
	assert.True(t, st.Busy)
	assert.Equal(t, router.StateDispatching.String(), st.State)

	s.Step()
	st = s.Status()
	assert.False(t, st.Busy)
	assert.False(t, st.Error)
	assert.Equal(t, [router.NumChannels]bool{true, false, false}, st.Valid)
	assert.Equal(t, [router.NumChannels]int{2, 0, 0}, st.Occupancy)

	if diff := cmp.Diff([]byte{0xAA, 0x55}, drain(t, s, 0, 0)); diff != "" {
		t.Errorf("drained bytes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, [router.NumChannels]bool{}, s.Status().Valid)
}

func TestStepParityError(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x04, 0x42, 0x00}, Gap: true}))
	steps(s, 4)
	st := s.Status()
	assert.True(t, st.Error)
	assert.False(t, st.Busy)
	assert.Equal(t, [router.NumChannels]int{}, st.Occupancy)

	events, err := s.Events(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, router.EventParityError, events[0].Kind)
	assert.Equal(t, 0, events[0].Channel)
}

func TestBurstsWithoutGapFormOneStream(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	// a frame split over two serial reads
	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x09, 0x10}}))
	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x20, 0x08 ^ 0x01 ^ 0x10 ^ 0x20}}))
	steps(s, 5)

	st := s.Status()
	assert.False(t, st.Error)
	assert.Equal(t, [router.NumChannels]int{0, 2, 0}, st.Occupancy)
	assert.Equal(t, []byte{0x10, 0x20}, drain(t, s, 1, 0))
}

func TestDrainMax(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	frame, err := layers.EncodeFrame(2, []byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, s.Submit(srv.Burst{Data: frame, Gap: true}))
	steps(s, len(frame)+1)

	assert.Equal(t, []byte{1}, drain(t, s, 2, 1))
	assert.Equal(t, []byte{2, 3}, drain(t, s, 2, 5))
	assert.Empty(t, drain(t, s, 2, 0))
}

func TestDrainWrongChannel(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	_, err := s.Drain(context.Background(), 3, 0)
	assert.ErrorAs(t, err, &router.ErrChannel{})
}

func TestDrainCancelled(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Drain(ctx, 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReset(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	frame, err := layers.EncodeFrame(0, []byte{0xAB})
	require.NoError(t, err)
	require.NoError(t, s.Submit(srv.Burst{Data: frame, Gap: true}))
	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x04, 0x42, 0x00}, Gap: true}))
	steps(s, 8)
	st := s.Status()
	require.True(t, st.Error)
	require.True(t, st.Valid[0])

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Reset(context.Background()))
	}()
	stepUntil(t, s, done)

	st = s.Status()
	assert.False(t, st.Error)
	assert.False(t, st.Busy)
	assert.Equal(t, [router.NumChannels]bool{}, st.Valid)
}

func TestSubmitQueueFull(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.InputQueue = 1
	s := newTestServer(t, cfg)

	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x00, 0x00}}))
	err := s.Submit(srv.Burst{Data: []byte{0x00, 0x00}})
	assert.ErrorAs(t, err, &srv.ErrQueueFull{})

	s.Step()
	assert.NoError(t, s.Submit(srv.Burst{Data: []byte{0x00, 0x00}}))
}

func TestFeedWaitsForRoom(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.InputQueue = 1
	s := newTestServer(t, cfg)
	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x00, 0x00}}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Feed(ctx, srv.Burst{Data: []byte{0x00, 0x00}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventsLimit(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x03, 0x03}, Gap: true}))
	}
	steps(s, 12)

	events, err := s.Events(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, router.EventAbsorbed, e.Kind)
	}
	assert.Less(t, events[0].Cycle, events[1].Cycle)

	events, err = s.Events(0)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestClock(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Clock(ctx)
	}()

	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x08, 0xAA, 0x55, 0xF7}, Gap: true}))
	require.Eventually(t, func() bool {
		return s.Status().Valid[0]
	}, 2*time.Second, time.Millisecond)

	data, err := s.Drain(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x55}, data)

	cancel()
	assert.ErrorIs(t, <-errChan, context.Canceled)
}

func newTestPacket(t *testing.T, data []byte) gopacket.Packet {
	packet := gopacket.NewPacket(data, layers.FrameLayerType, gopacket.Default)
	packet.Metadata().CaptureInfo = gopacket.CaptureInfo{
		Length:        len(data),
		CaptureLength: len(data),
		AncillaryData: []interface{}{&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}},
	}
	return packet
}

func TestHandlePacket(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	first, err := layers.EncodeFrame(0, []byte{0x11})
	require.NoError(t, err)
	second, err := layers.EncodeFrame(1, []byte{0x22, 0x33})
	require.NoError(t, err)

	s.HandlePacket(newTestPacket(t, append(append([]byte{}, first...), second...)))
	require.Len(t, s.bursts, 2)

	burst := <-s.bursts
	assert.Equal(t, first, burst.Data)
	assert.True(t, burst.Gap)
	assert.Equal(t, SourceUdp, burst.Source)
	burst = <-s.bursts
	assert.Equal(t, second, burst.Data)
}

func TestHandlePacketTruncated(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	frame, err := layers.EncodeFrame(0, []byte{0x11, 0x22})
	require.NoError(t, err)
	data := append(append([]byte{}, frame...), frame[:2]...)

	s.HandlePacket(newTestPacket(t, data))
	assert.Len(t, s.bursts, 0)
}

func TestHandlePacketWithoutAddr(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	frame, err := layers.EncodeFrame(0, []byte{0x11})
	require.NoError(t, err)

	s.HandlePacket(gopacket.NewPacket(frame, layers.FrameLayerType, gopacket.Default))
	assert.Len(t, s.bursts, 0)
}

func TestCancelledDrainKeepsBytes(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	frame, err := layers.EncodeFrame(0, []byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, s.Submit(srv.Burst{Data: frame, Gap: true}))
	steps(s, len(frame)+1)
	require.Equal(t, [router.NumChannels]int{3, 0, 0}, s.Status().Occupancy)

	// the caller went away after the request was accepted
	ctx, cancel := context.WithCancel(context.Background())
	s.draining[0] = append(s.draining[0], &DrainRequest{Context: ctx, Channel: 0, reply: make(chan []byte, 1)})
	cancel()
	steps(s, 5)
	assert.Equal(t, [router.NumChannels]int{3, 0, 0}, s.Status().Occupancy)
	assert.Empty(t, s.draining[0])

	assert.Equal(t, []byte{1, 2, 3}, drain(t, s, 0, 0))
}

func TestSnapshotReceived(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))

	require.NoError(t, s.Submit(srv.Burst{Data: []byte{0x0C, 0x01, 0x02}}))
	steps(s, 3)
	st := s.Status()
	assert.Equal(t, 2, st.Received)
	assert.Equal(t, router.StateReceiving.String(), st.State)
}

func TestHandlePacketFourBitLength(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Router.LengthBits = 4
	s := newTestServer(t, cfg)
	assert.Equal(t, 15, s.MaxPayload())

	short, err := layers.EncodeFrame(1, make([]byte, 15))
	require.NoError(t, err)
	long, err := layers.EncodeFrame(1, make([]byte, 16))
	require.NoError(t, err)

	// one frame too long for the length field drops the whole datagram
	s.HandlePacket(newTestPacket(t, append(append([]byte{}, short...), long...)))
	assert.Len(t, s.bursts, 0)

	s.HandlePacket(newTestPacket(t, short))
	assert.Len(t, s.bursts, 1)
}

func TestRunStopsClockOnApiError(t *testing.T) {
	cfg := newTestConfig(t)
	busy, err := net.Listen("tcp", net.JoinHostPort(cfg.IP, "0"))
	require.NoError(t, err)
	defer busy.Close()

	cfg.ApiPort = busy.Addr().(*net.TCPAddr).Port
	s, err := NewControlServer(context.Background(), cfg)
	require.NoError(t, err)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Run()
	}()
	select {
	case err := <-errChan:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the API server failed")
	}

	assert.Error(t, s.Context.Err())
	cycle := s.Status().Cycle
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, cycle, s.Status().Cycle)
}
