package memory

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type segmentWire struct {
	Address     uint64      `msgpack:"address"`
	Bytes       []byte      `msgpack:"bytes"`
	Permissions Permissions `msgpack:"permissions"`
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (s Segment) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(segmentWire{
		Address:     s.address,
		Bytes:       s.bytes,
		Permissions: s.permissions,
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (s *Segment) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w segmentWire
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("decoding segment: %w", err)
	}
	*s = Segment{address: w.Address, bytes: w.Bytes, permissions: w.Permissions}
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (m *Memory) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(m.segments)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (m *Memory) DecodeMsgpack(dec *msgpack.Decoder) error {
	var segments []Segment
	if err := dec.Decode(&segments); err != nil {
		return fmt.Errorf("decoding memory: %w", err)
	}
	m.segments = nil
	for _, s := range segments {
		m.AddSegment(s)
	}
	return nil
}
