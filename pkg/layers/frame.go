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

package layers

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"jinr.ru/greenlab/go-router/pkg/parity"
)

const (
	// FrameLayerNum identifies the layer
	FrameLayerNum = 2000
	// MaxFrameLength is the largest payload the 6-bit length field can declare
	MaxFrameLength = 0x3f
	// MaxDestination is the highest 2-bit destination address, reserved and never routed
	MaxDestination = 3
)

// ErrShortFrame returned when a datagram ends inside a frame
type ErrShortFrame struct {
	Need int
	Have int
}

func (e ErrShortFrame) Error() string {
	return fmt.Sprintf("Frame truncated: need %d bytes, have %d", e.Need, e.Have)
}

// ErrFrameField returned when a frame field does not fit the header byte
type ErrFrameField struct {
	What string
}

func (e ErrFrameField) Error() string {
	return fmt.Sprintf("Wrong frame field: %s", e.What)
}

// FrameLayer is one router frame: header, payload and parity byte.
// Several frames may follow each other in one datagram, each one is a separate layer.
type FrameLayer struct {
	layers.BaseLayer
	Destination uint8
	Length      uint8 // declared payload length, 6 bits
	Data        []byte
	Parity      uint8
}

var FrameLayerType = gopacket.RegisterLayerType(FrameLayerNum,
	gopacket.LayerTypeMetadata{Name: "FrameLayerType", Decoder: gopacket.DecodeFunc(decodeFrameLayer)})

// LayerType returns the type of the frame layer in the layer catalog
func (f *FrameLayer) LayerType() gopacket.LayerType {
	return FrameLayerType
}

// CanDecode is from DecodingLayer interface
func (f *FrameLayer) CanDecode() gopacket.LayerClass {
	return FrameLayerType
}

// NextLayerType returns FrameLayerType while bytes remain after this frame
func (f *FrameLayer) NextLayerType() gopacket.LayerType {
	if len(f.Payload) > 0 {
		return FrameLayerType
	}
	return gopacket.LayerTypeZero
}

// Header returns the header byte for the current field values
func (f *FrameLayer) Header() byte {
	return f.Length<<2 | f.Destination&0x03
}

// Valid reports whether the parity byte matches header and payload
func (f *FrameLayer) Valid() bool {
	return parity.Verify(append([]byte{f.Header()}, f.Data...), f.Parity)
}

// SerializeTo writes the frame into the SerializeBuffer.
// FixLengths sets Length from Data, ComputeChecksums sets Parity.
func (f *FrameLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if f.Destination > MaxDestination {
		return ErrFrameField{What: fmt.Sprintf("destination %d > %d", f.Destination, MaxDestination)}
	}
	if len(f.Data) > MaxFrameLength {
		return ErrFrameField{What: fmt.Sprintf("payload length %d > %d", len(f.Data), MaxFrameLength)}
	}
	if opts.FixLengths {
		f.Length = uint8(len(f.Data))
	}
	if opts.ComputeChecksums {
		f.Parity = parity.Compute([]byte{f.Header()}, f.Data)
	}

	bytes, err := b.PrependBytes(len(f.Data) + 2)
	if err != nil {
		return err
	}
	bytes[0] = f.Header()
	copy(bytes[1:], f.Data)
	bytes[len(bytes)-1] = f.Parity
	return nil
}

// DecodeFromBytes decodes the first frame in data, the rest becomes the payload
func (f *FrameLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < 2 {
		df.SetTruncated()
		return ErrShortFrame{Need: 2, Have: len(data)}
	}
	header := data[0]
	length := int(header >> 2)
	size := length + 2
	if len(data) < size {
		df.SetTruncated()
		return ErrShortFrame{Need: size, Have: len(data)}
	}

	f.BaseLayer = layers.BaseLayer{
		Contents: data[:size],
		Payload:  data[size:],
	}
	f.Destination = header & 0x03
	f.Length = uint8(length)
	f.Data = data[1 : 1+length]
	f.Parity = data[size-1]
	return nil
}

func decodeFrameLayer(data []byte, p gopacket.PacketBuilder) error {
	f := &FrameLayer{}
	err := f.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(f)
	if len(f.Payload) > 0 {
		return p.NextDecoder(gopacket.DecodeFunc(decodeFrameLayer))
	}
	return nil
}

func encode(frame *FrameLayer, opts gopacket.SerializeOptions) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, opts, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeFrame serializes a frame with computed length and parity
func EncodeFrame(destination uint8, data []byte) ([]byte, error) {
	return encode(&FrameLayer{Destination: destination, Data: data},
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true})
}

// EncodeFrameWithParity serializes a frame with the given parity byte, right or wrong
func EncodeFrameWithParity(destination uint8, data []byte, parity uint8) ([]byte, error) {
	return encode(&FrameLayer{Destination: destination, Data: data, Parity: parity},
		gopacket.SerializeOptions{FixLengths: true})
}

// DecodeFrames splits a datagram into frames. It fails if the datagram ends inside a frame.
func DecodeFrames(data []byte) ([]*FrameLayer, error) {
	packet := gopacket.NewPacket(data, FrameLayerType, gopacket.Default)
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return nil, errLayer.Error()
	}
	var frames []*FrameLayer
	for _, layer := range packet.Layers() {
		if f, ok := layer.(*FrameLayer); ok {
			frames = append(frames, f)
		}
	}
	return frames, nil
}
