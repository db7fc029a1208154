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
	"errors"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"

	"jinr.ru/greenlab/go-router/pkg/config"
	"jinr.ru/greenlab/go-router/pkg/log"
	"jinr.ru/greenlab/go-router/pkg/srv"
)

// SerialPorter is the part of a serial port the ingest needs
type SerialPorter interface {
	io.Reader
	io.Closer
}

// PortOpener opens a serial port, it is replaced in tests
type PortOpener func(path string, mode *serial.Mode) (SerialPorter, error)

func OpenSerialPort(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

// SerialMode converts the serial config section into the mode required by go.bug.st/serial
func SerialMode(cfg *config.SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = config.DefaultSerialBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = config.DefaultSerialDataBits
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, config.ErrInvalidConfig{What: fmt.Sprintf("serial data bits %d: must be between 5 and 8", mode.DataBits)}
	}

	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, config.ErrInvalidConfig{What: fmt.Sprintf("serial stop bits %d: supported values are 1 or 2", cfg.StopBits)}
	}

	switch strings.ToUpper(strings.TrimSpace(cfg.Parity)) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, config.ErrInvalidConfig{What: fmt.Sprintf("serial parity %q: expected N, E, or O", cfg.Parity)}
	}
	return mode, nil
}

func (s *ControlServer) openSerial() (SerialPorter, error) {
	mode, err := SerialMode(s.Config.Serial)
	if err != nil {
		return nil, err
	}
	log.Info("Opening serial port: %s baud: %d", s.Config.Serial.Path, mode.BaudRate)
	return s.opener(s.Config.Serial.Path, mode)
}

// ReadSerial feeds every chunk read from the port into the router without gaps,
// so a frame may span several reads. It returns nil at end of stream.
func (s *ControlServer) ReadSerial(ctx context.Context, port SerialPorter) error {
	buf := make([]byte, SerialReadSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if feedErr := s.Feed(ctx, srv.Burst{Data: data, Source: SourceSerial}); feedErr != nil {
				return feedErr
			}
		}
		if errors.Is(err, io.EOF) {
			log.Info("Serial port closed")
			return nil
		}
		if err != nil {
			return err
		}
	}
}
