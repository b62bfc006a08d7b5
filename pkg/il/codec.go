package il

import (
	"github.com/vmihailenco/msgpack/v5"
)

type blockWire struct {
	Index                uint64        `msgpack:"index"`
	NextInstructionIndex uint64        `msgpack:"next_instruction_index"`
	NextTempIndex        uint64        `msgpack:"next_temp_index"`
	Instructions         []Instruction `msgpack:"instructions"`
}

// EncodeMsgpack implements msgpack.CustomEncoder. Both counters are kept so
// a decoded block never reissues an index.
func (b *Block) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(blockWire{
		Index:                b.index,
		NextInstructionIndex: b.nextInstructionIndex,
		NextTempIndex:        b.nextTempIndex,
		Instructions:         b.instructions,
	})
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (b *Block) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w blockWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	b.index = w.Index
	b.nextInstructionIndex = w.NextInstructionIndex
	b.nextTempIndex = w.NextTempIndex
	b.instructions = w.Instructions
	return nil
}
