package il

import (
	"fmt"
	"strings"
)

// OperationKind identifies the variant carried by an Operation.
type OperationKind string

const (
	OperationAssign OperationKind = "assign"
	OperationStore  OperationKind = "store"
	OperationLoad   OperationKind = "load"
	OperationBrc    OperationKind = "brc"
	OperationPhi    OperationKind = "phi"
	OperationRaise  OperationKind = "raise"
)

// Operation is one IL operation. Which fields are set depends on Kind:
//
//	assign  Dst, Src
//	store   Array, Address, Src
//	load    Dst, Address, Array
//	brc     Target, Condition
//	phi     PhiDst, PhiSrc
//	raise   Src
type Operation struct {
	Kind      OperationKind `msgpack:"kind" json:"kind"`
	Dst       *Scalar       `msgpack:"dst,omitempty" json:"dst,omitempty"`
	Array     *Array        `msgpack:"array,omitempty" json:"array,omitempty"`
	Address   *Expression   `msgpack:"address,omitempty" json:"address,omitempty"`
	Src       *Expression   `msgpack:"src,omitempty" json:"src,omitempty"`
	Target    *Expression   `msgpack:"target,omitempty" json:"target,omitempty"`
	Condition *Expression   `msgpack:"condition,omitempty" json:"condition,omitempty"`
	PhiDst    *MultiVar     `msgpack:"phi_dst,omitempty" json:"phi_dst,omitempty"`
	PhiSrc    []MultiVar    `msgpack:"phi_src,omitempty" json:"phi_src,omitempty"`
}

func exprPtr(e Expression) *Expression { return &e }

func AssignOp(dst Scalar, src Expression) Operation {
	return Operation{Kind: OperationAssign, Dst: &dst, Src: &src}
}

func StoreOp(dst Array, address, src Expression) Operation {
	return Operation{Kind: OperationStore, Array: &dst, Address: &address, Src: &src}
}

func LoadOp(dst Scalar, address Expression, src Array) Operation {
	return Operation{Kind: OperationLoad, Dst: &dst, Address: &address, Array: &src}
}

func BrcOp(target, condition Expression) Operation {
	return Operation{Kind: OperationBrc, Target: &target, Condition: &condition}
}

func PhiOp(dst MultiVar, src []MultiVar) Operation {
	return Operation{Kind: OperationPhi, PhiDst: &dst, PhiSrc: src}
}

func RaiseOp(expr Expression) Operation {
	return Operation{Kind: OperationRaise, Src: &expr}
}

// Clone returns a deep copy of o.
func (o Operation) Clone() Operation {
	out := Operation{Kind: o.Kind}
	if o.Dst != nil {
		s := *o.Dst
		out.Dst = &s
	}
	if o.Array != nil {
		a := *o.Array
		out.Array = &a
	}
	if o.Address != nil {
		out.Address = exprPtr(o.Address.Clone())
	}
	if o.Src != nil {
		out.Src = exprPtr(o.Src.Clone())
	}
	if o.Target != nil {
		out.Target = exprPtr(o.Target.Clone())
	}
	if o.Condition != nil {
		out.Condition = exprPtr(o.Condition.Clone())
	}
	if o.PhiDst != nil {
		v := o.PhiDst.Clone()
		out.PhiDst = &v
	}
	if o.PhiSrc != nil {
		out.PhiSrc = make([]MultiVar, len(o.PhiSrc))
		for i, v := range o.PhiSrc {
			out.PhiSrc[i] = v.Clone()
		}
	}
	return out
}

// IsPhi reports whether o is a phi node.
func (o Operation) IsPhi() bool { return o.Kind == OperationPhi }

func (o Operation) String() string {
	switch o.Kind {
	case OperationAssign:
		return fmt.Sprintf("%s = %s", o.Dst, o.Src)
	case OperationStore:
		return fmt.Sprintf("[%s]%s = %s", o.Address, o.Array.Name, o.Src)
	case OperationLoad:
		return fmt.Sprintf("%s = [%s]%s", o.Dst, o.Address, o.Array.Name)
	case OperationBrc:
		return fmt.Sprintf("brc %s ? %s", o.Target, o.Condition)
	case OperationPhi:
		srcs := make([]string, len(o.PhiSrc))
		for i, v := range o.PhiSrc {
			srcs[i] = v.String()
		}
		return fmt.Sprintf("%s = phi(%s)", o.PhiDst, strings.Join(srcs, ", "))
	case OperationRaise:
		return fmt.Sprintf("raise(%s)", o.Src)
	default:
		return string(o.Kind)
	}
}

// Instruction is an Operation with a block-local index and, once lifted from
// machine code, the address it came from.
type Instruction struct {
	Index     uint64    `msgpack:"index" json:"index"`
	Operation Operation `msgpack:"operation" json:"operation"`
	Address   *uint64   `msgpack:"address,omitempty" json:"address,omitempty"`
}

// CloneNewIndex deep-copies the instruction under a new index.
func (i Instruction) CloneNewIndex(index uint64) Instruction {
	out := Instruction{Index: index, Operation: i.Operation.Clone()}
	if i.Address != nil {
		a := *i.Address
		out.Address = &a
	}
	return out
}

// SetAddress records the machine address the instruction was lifted from.
func (i *Instruction) SetAddress(address uint64) {
	i.Address = &address
}

func (i Instruction) String() string {
	if i.Address != nil {
		return fmt.Sprintf("%X %02X %s", *i.Address, i.Index, i.Operation)
	}
	return fmt.Sprintf("%02X %s", i.Index, i.Operation)
}
