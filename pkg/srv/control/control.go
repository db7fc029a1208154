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
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/gopacket"

	"jinr.ru/greenlab/go-router/pkg/config"
	"jinr.ru/greenlab/go-router/pkg/layers"
	"jinr.ru/greenlab/go-router/pkg/log"
	"jinr.ru/greenlab/go-router/pkg/router"
	"jinr.ru/greenlab/go-router/pkg/srv"
	"jinr.ru/greenlab/go-router/pkg/srv/control/ifc"
)

// DrainRequest asks for up to Max bytes of one channel. Max <= 0 drains until empty.
// A request whose context is done is dropped before the next pop.
type DrainRequest struct {
	context.Context
	Channel int
	Max     int
	data    []byte
	reply   chan []byte
}

type ControlServer struct {
	srv.Server
	router *router.Router
	state  *EventState
	api    ifc.ApiServer
	opener PortOpener
	cancel context.CancelFunc

	// longest payload a queued frame may carry for the configured length field
	maxPayload int

	bursts chan srv.Burst
	drains chan *DrainRequest
	resets chan chan struct{}

	// owned by the clock goroutine
	current  *srv.Burst
	offset   int
	gap      bool
	draining [router.NumChannels][]*DrainRequest

	mu       sync.RWMutex
	snapshot srv.Snapshot
}

var _ ifc.ControlServer = &ControlServer{}

// NewControlServer ...
func NewControlServer(ctx context.Context, cfg *config.Config) (*ControlServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rc, err := cfg.RouterSettings()
	if err != nil {
		return nil, err
	}
	r, err := router.New(rc)
	if err != nil {
		return nil, err
	}

	var uaddr *net.UDPAddr
	if cfg.UdpPort > 0 {
		log.Debug("Initializing router UDP ingest with address: %s port: %d", cfg.IP, cfg.UdpPort)
		uaddr, err = net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.IP, cfg.UdpPort))
		if err != nil {
			return nil, err
		}
	}

	state, err := NewEventState(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &ControlServer{
		Server: srv.Server{
			Context: ctx,
			Config:  cfg,
			UDPAddr: uaddr,
			ChIn:    make(chan srv.InPacket),
		},
		router:     r,
		state:      state,
		opener:     OpenSerialPort,
		cancel:     cancel,
		maxPayload: r.Config().MaxPayload(),
		bursts:     make(chan srv.Burst, cfg.InputQueue),
		drains:     make(chan *DrainRequest),
		resets:     make(chan chan struct{}),
	}
	// the router starts from a synchronous reset
	s.tick(router.Inputs{Reset: true})

	apiServer, err := NewApiServer(ctx, cfg, s)
	if err != nil {
		cancel()
		state.Close()
		return nil, err
	}
	s.api = apiServer
	return s, nil
}

// Close stops the server goroutines and releases the event state. Run closes it on return.
func (s *ControlServer) Close() {
	s.cancel()
	s.state.Close()
}

func (s *ControlServer) Run() error {
	defer s.Close()

	errChan := make(chan error, 4)

	if s.UDPAddr != nil {
		conn, err := net.ListenUDP("udp", s.UDPAddr)
		if err != nil {
			return err
		}
		defer conn.Close()
		go func() {
			errChan <- s.readUDP(conn)
		}()
		go s.decodeUDP()
	}

	if s.Config.SerialEnabled() {
		port, err := s.openSerial()
		if err != nil {
			return err
		}
		defer port.Close()
		go func() {
			errChan <- s.ReadSerial(s.Context, port)
		}()
	}

	go func() {
		errChan <- s.api.Run()
	}()

	clockDone := make(chan struct{})
	go func() {
		defer close(clockDone)
		errChan <- s.Clock(s.Context)
	}()

	var err error
	select {
	case <-s.Context.Done():
		err = s.Context.Err()
	case err = <-errChan:
	}
	// stop the clock, API and ingest before the event state is closed
	s.cancel()
	<-clockDone
	return err
}

// readUDP reads datagrams from wire and puts them to the input queue
func (s *ControlServer) readUDP(conn *net.UDPConn) error {
	buffer := make([]byte, UdpBufferSize)
	for {
		length, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			return err
		}
		data := make([]byte, length)
		copy(data, buffer[:length])
		captureInfo := gopacket.CaptureInfo{
			Length:        length,
			CaptureLength: length,
			Timestamp:     time.Now(),
			AncillaryData: []interface{}{addr},
		}
		select {
		case s.ChIn <- srv.InPacket{Data: data, CaptureInfo: captureInfo}:
		case <-s.Context.Done():
			return nil
		}
	}
}

// decodeUDP parses captured datagrams into frames and queues one burst per frame
func (s *ControlServer) decodeUDP() {
	source := gopacket.NewPacketSource(s, layers.FrameLayerType)
	for packet := range source.Packets() {
		s.HandlePacket(packet)
	}
}

// HandlePacket queues the frames of a decoded datagram. Truncated datagrams are dropped whole.
func (s *ControlServer) HandlePacket(packet gopacket.Packet) {
	addr, err := srv.GetAddr(packet)
	if err != nil {
		log.Error(err.Error())
		return
	}
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		log.Warning("Drop datagram from %s: %s", addr, errLayer.Error())
		return
	}
	var frames []*layers.FrameLayer
	for _, layer := range packet.Layers() {
		frame, ok := layer.(*layers.FrameLayer)
		if !ok {
			continue
		}
		if int(frame.Length) > s.maxPayload {
			log.Warning("Drop datagram from %s: frame length %d > %d", addr, frame.Length, s.maxPayload)
			return
		}
		frames = append(frames, frame)
	}
	for _, frame := range frames {
		log.Debug("Frame from %s: destination: %d length: %d", addr, frame.Destination, frame.Length)
		burst := srv.Burst{Data: frame.LayerContents(), Gap: true, Source: SourceUdp}
		if err := s.Submit(burst); err != nil {
			log.Warning("Drop frame from %s: %s", addr, err)
		}
	}
}

// Clock advances the router every cycle period until ctx is done
func (s *ControlServer) Clock(ctx context.Context) error {
	log.Info("Router clock started: period: %s", s.Config.CyclePeriod)
	ticker := time.NewTicker(s.Config.CyclePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step samples the pending requests and input queue and runs one router cycle.
// Only one goroutine may call Step.
func (s *ControlServer) Step() {
	s.acceptDrains()

	select {
	case done := <-s.resets:
		s.tick(router.Inputs{Reset: true})
		close(done)
		return
	default:
	}

	in := router.Inputs{Enable: true}
	s.nextByte(&in)
	for c, queue := range s.draining {
		in.ReadEnable[c] = len(queue) > 0
	}

	out := s.tick(in)

	for c, queue := range s.draining {
		if len(queue) == 0 {
			continue
		}
		req := queue[0]
		if out.DataValid[c] {
			req.data = append(req.data, out.Data[c])
		}
		if (req.Max > 0 && len(req.data) >= req.Max) || !out.Valid[c] {
			req.reply <- req.data
			s.draining[c] = queue[1:]
		}
	}
}

func (s *ControlServer) acceptDrains() {
	for {
		select {
		case req := <-s.drains:
			s.draining[req.Channel] = append(s.draining[req.Channel], req)
		default:
			s.dropCancelledDrains()
			return
		}
	}
}

func (s *ControlServer) dropCancelledDrains() {
	for c, queue := range s.draining {
		kept := queue[:0]
		for _, req := range queue {
			if req.Err() != nil {
				log.Debug("Drain of channel %d cancelled after %d bytes", c, len(req.data))
				continue
			}
			kept = append(kept, req)
		}
		s.draining[c] = kept
	}
}

// nextByte fills the strobe and byte inputs from the current burst
func (s *ControlServer) nextByte(in *router.Inputs) {
	if s.gap {
		s.gap = false
		return
	}
	if s.current == nil {
		select {
		case burst := <-s.bursts:
			if len(burst.Data) == 0 {
				return
			}
			s.current = &burst
			s.offset = 0
		default:
			return
		}
	}
	in.Strobe = true
	in.Byte = s.current.Data[s.offset]
	s.offset++
	if s.offset == len(s.current.Data) {
		s.gap = s.current.Gap
		s.current = nil
	}
}

func (s *ControlServer) tick(in router.Inputs) router.Outputs {
	out := s.router.Tick(in)
	for _, e := range out.Events {
		if e.Fault() {
			log.Warning("Router %s", e)
		} else {
			log.Debug("Router %s", e)
		}
	}
	if err := s.state.Append(out.Events); err != nil {
		log.Error("Error while storing router events: %s", err)
	}

	st := s.router.Status()
	s.mu.Lock()
	s.snapshot = srv.Snapshot{
		Cycle:     out.Cycle,
		State:     st.State.String(),
		Busy:      out.Busy,
		Error:     out.Error,
		Valid:     out.Valid,
		Occupancy: s.router.Occupancy(),
		Received:  s.router.Received(),
		Queued:    len(s.bursts),
	}
	s.mu.Unlock()
	return out
}

// Submit queues a burst, it fails instead of blocking when the queue is full
func (s *ControlServer) Submit(burst srv.Burst) error {
	select {
	case s.bursts <- burst:
		return nil
	default:
		return srv.ErrQueueFull{Size: cap(s.bursts)}
	}
}

// Feed queues a burst, waiting for room in the queue
func (s *ControlServer) Feed(ctx context.Context, burst srv.Burst) error {
	select {
	case s.bursts <- burst:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain asserts read enable on a channel until max bytes are popped or the buffer is empty
func (s *ControlServer) Drain(ctx context.Context, channel, max int) ([]byte, error) {
	if channel < 0 || channel >= router.NumChannels {
		return nil, router.ErrChannel{Channel: channel}
	}
	req := &DrainRequest{
		Context: ctx,
		Channel: channel,
		Max:     max,
		reply:   make(chan []byte, 1),
	}
	select {
	case s.drains <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case data := <-req.reply:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset asserts the synchronous reset for one cycle
func (s *ControlServer) Reset(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.resets <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler returns the HTTP API of the server
func (s *ControlServer) Handler() http.Handler {
	return s.api.Handler()
}

// MaxPayload returns the longest frame payload the router accepts
func (s *ControlServer) MaxPayload() int {
	return s.maxPayload
}

func (s *ControlServer) Status() srv.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *ControlServer) Events(limit int) ([]*srv.EventRecord, error) {
	if limit <= 0 {
		limit = DefaultEventsLimit
	}
	if limit > MaxEventsLimit {
		limit = MaxEventsLimit
	}
	return s.state.Events(limit)
}
