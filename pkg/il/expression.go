// Package il defines the lifted intermediate language: value types,
// instructions, basic blocks and the control-flow graph that owns them.
//
// A lifter builds IL by calling builder methods directly on the Block that
// should receive the instruction. Blocks are created through Graph.NewBlock.
package il

import (
	"fmt"
	"strings"
)

// Scalar is a named variable of a fixed bit width.
type Scalar struct {
	Name string `msgpack:"name" json:"name"`
	Bits int    `msgpack:"bits" json:"bits"`
}

// NewScalar creates a scalar variable.
func NewScalar(name string, bits int) Scalar {
	return Scalar{Name: name, Bits: bits}
}

func (s Scalar) String() string {
	return fmt.Sprintf("%s:%d", s.Name, s.Bits)
}

// Constant is a literal value truncated to Bits.
type Constant struct {
	Value uint64 `msgpack:"value" json:"value"`
	Bits  int    `msgpack:"bits" json:"bits"`
}

// NewConstant creates a constant, masking value to bits.
func NewConstant(value uint64, bits int) Constant {
	if bits < 64 {
		value &= (uint64(1) << uint(bits)) - 1
	}
	return Constant{Value: value, Bits: bits}
}

func (c Constant) String() string {
	return fmt.Sprintf("0x%x:%d", c.Value, c.Bits)
}

// Array is a named byte-addressable memory variable.
type Array struct {
	Name string `msgpack:"name" json:"name"`
	Size uint64 `msgpack:"size" json:"size"`
}

// NewArray creates an array variable.
func NewArray(name string, size uint64) Array {
	return Array{Name: name, Size: size}
}

func (a Array) String() string {
	return fmt.Sprintf("%s[0x%x]", a.Name, a.Size)
}

// MultiVar holds either a Scalar or an Array. Phi nodes merge MultiVars.
type MultiVar struct {
	Scalar *Scalar `msgpack:"scalar,omitempty" json:"scalar,omitempty"`
	Array  *Array  `msgpack:"array,omitempty" json:"array,omitempty"`
}

// ScalarVar wraps a scalar.
func ScalarVar(s Scalar) MultiVar {
	return MultiVar{Scalar: &s}
}

// ArrayVar wraps an array.
func ArrayVar(a Array) MultiVar {
	return MultiVar{Array: &a}
}

// Clone returns a copy that shares no pointers with v.
func (v MultiVar) Clone() MultiVar {
	var out MultiVar
	if v.Scalar != nil {
		s := *v.Scalar
		out.Scalar = &s
	}
	if v.Array != nil {
		a := *v.Array
		out.Array = &a
	}
	return out
}

func (v MultiVar) String() string {
	switch {
	case v.Scalar != nil:
		return v.Scalar.String()
	case v.Array != nil:
		return v.Array.String()
	default:
		return "<none>"
	}
}

// ExprOp is the operator at the root of an Expression.
type ExprOp string

const (
	OpScalar   ExprOp = "scalar"
	OpConstant ExprOp = "constant"
	OpAdd      ExprOp = "add"
	OpSub      ExprOp = "sub"
	OpMul      ExprOp = "mul"
	OpAnd      ExprOp = "and"
	OpOr       ExprOp = "or"
	OpXor      ExprOp = "xor"
	OpShl      ExprOp = "shl"
	OpShr      ExprOp = "shr"
	OpCmpeq    ExprOp = "cmpeq"
	OpCmpneq   ExprOp = "cmpneq"
	OpCmpltu   ExprOp = "cmpltu"
	OpCmplts   ExprOp = "cmplts"
	OpZext     ExprOp = "zext"
	OpSext     ExprOp = "sext"
	OpTrun     ExprOp = "trun"
)

// Expression is an immutable expression tree. Leaves are scalars and
// constants; interior nodes carry one or two operands.
type Expression struct {
	Op       ExprOp       `msgpack:"op" json:"op"`
	Scalar   *Scalar      `msgpack:"scalar,omitempty" json:"scalar,omitempty"`
	Constant *Constant    `msgpack:"constant,omitempty" json:"constant,omitempty"`
	Operands []Expression `msgpack:"operands,omitempty" json:"operands,omitempty"`
	// Width is the result width of extension and truncation.
	Width int `msgpack:"width,omitempty" json:"width,omitempty"`
}

// ScalarExpr returns an expression reading s.
func ScalarExpr(s Scalar) Expression {
	return Expression{Op: OpScalar, Scalar: &s}
}

// ConstExpr returns a constant expression.
func ConstExpr(value uint64, bits int) Expression {
	c := NewConstant(value, bits)
	return Expression{Op: OpConstant, Constant: &c}
}

func binary(op ExprOp, lhs, rhs Expression) (Expression, error) {
	if lhs.Bits() != rhs.Bits() {
		return Expression{}, fmt.Errorf("%s: operand widths differ (%d != %d)", op, lhs.Bits(), rhs.Bits())
	}
	return Expression{Op: op, Operands: []Expression{lhs, rhs}}, nil
}

func Add(lhs, rhs Expression) (Expression, error)    { return binary(OpAdd, lhs, rhs) }
func Sub(lhs, rhs Expression) (Expression, error)    { return binary(OpSub, lhs, rhs) }
func Mul(lhs, rhs Expression) (Expression, error)    { return binary(OpMul, lhs, rhs) }
func And(lhs, rhs Expression) (Expression, error)    { return binary(OpAnd, lhs, rhs) }
func Or(lhs, rhs Expression) (Expression, error)     { return binary(OpOr, lhs, rhs) }
func Xor(lhs, rhs Expression) (Expression, error)    { return binary(OpXor, lhs, rhs) }
func Shl(lhs, rhs Expression) (Expression, error)    { return binary(OpShl, lhs, rhs) }
func Shr(lhs, rhs Expression) (Expression, error)    { return binary(OpShr, lhs, rhs) }
func Cmpeq(lhs, rhs Expression) (Expression, error)  { return binary(OpCmpeq, lhs, rhs) }
func Cmpneq(lhs, rhs Expression) (Expression, error) { return binary(OpCmpneq, lhs, rhs) }
func Cmpltu(lhs, rhs Expression) (Expression, error) { return binary(OpCmpltu, lhs, rhs) }
func Cmplts(lhs, rhs Expression) (Expression, error) { return binary(OpCmplts, lhs, rhs) }

func extend(op ExprOp, width int, src Expression) (Expression, error) {
	switch op {
	case OpTrun:
		if width >= src.Bits() {
			return Expression{}, fmt.Errorf("trun: width %d not below source width %d", width, src.Bits())
		}
	default:
		if width <= src.Bits() {
			return Expression{}, fmt.Errorf("%s: width %d not above source width %d", op, width, src.Bits())
		}
	}
	return Expression{Op: op, Operands: []Expression{src}, Width: width}, nil
}

func Zext(width int, src Expression) (Expression, error) { return extend(OpZext, width, src) }
func Sext(width int, src Expression) (Expression, error) { return extend(OpSext, width, src) }
func Trun(width int, src Expression) (Expression, error) { return extend(OpTrun, width, src) }

// Bits returns the width of the value the expression produces.
func (e Expression) Bits() int {
	switch e.Op {
	case OpScalar:
		return e.Scalar.Bits
	case OpConstant:
		return e.Constant.Bits
	case OpCmpeq, OpCmpneq, OpCmpltu, OpCmplts:
		return 1
	case OpZext, OpSext, OpTrun:
		return e.Width
	default:
		if len(e.Operands) == 0 {
			return 0
		}
		return e.Operands[0].Bits()
	}
}

// Scalars returns every scalar read by the expression, in tree order.
func (e Expression) Scalars() []Scalar {
	var out []Scalar
	var walk func(Expression)
	walk = func(x Expression) {
		if x.Scalar != nil {
			out = append(out, *x.Scalar)
		}
		for _, op := range x.Operands {
			walk(op)
		}
	}
	walk(e)
	return out
}

// Clone returns a deep copy.
func (e Expression) Clone() Expression {
	out := Expression{Op: e.Op, Width: e.Width}
	if e.Scalar != nil {
		s := *e.Scalar
		out.Scalar = &s
	}
	if e.Constant != nil {
		c := *e.Constant
		out.Constant = &c
	}
	if len(e.Operands) > 0 {
		out.Operands = make([]Expression, len(e.Operands))
		for i, op := range e.Operands {
			out.Operands[i] = op.Clone()
		}
	}
	return out
}

func (e Expression) String() string {
	switch e.Op {
	case OpScalar:
		return e.Scalar.String()
	case OpConstant:
		return e.Constant.String()
	case OpZext, OpSext, OpTrun:
		return fmt.Sprintf("%s.%d(%s)", e.Op, e.Width, e.Operands[0])
	default:
		parts := make([]string, len(e.Operands))
		for i, op := range e.Operands {
			parts[i] = op.String()
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, " "+symbol(e.Op)+" "))
	}
}

func symbol(op ExprOp) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpXor:
		return "^"
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpCmpeq:
		return "=="
	case OpCmpneq:
		return "!="
	case OpCmpltu:
		return "<"
	case OpCmplts:
		return "<s"
	default:
		return string(op)
	}
}
