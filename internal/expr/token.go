// Package expr implements the strategy expression language: a token model of
// rolling-window variables, constants, and arithmetic operators; a
// shunting-yard compiler producing a binary expression tree; and an
// evaluator that turns the tree into a series aligned to a window of bars.
package expr

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// Operator is an arithmetic or grouping symbol.
type Operator int

const (
	OpAdd Operator = iota + 1
	OpSubtract
	OpMultiply
	OpDivide
	OpLeftGroup
	OpRightGroup
)

var operatorSymbols = map[Operator]string{
	OpAdd:        "+",
	OpSubtract:   "-",
	OpMultiply:   "*",
	OpDivide:     "/",
	OpLeftGroup:  "(",
	OpRightGroup: ")",
}

// ParseOperator maps a symbol such as "+" or "(" to its Operator.
func ParseOperator(sym string) (Operator, error) {
	for op, s := range operatorSymbols {
		if s == sym {
			return op, nil
		}
	}
	return 0, compileErr(UnknownOperatorSymbol, -1, "unknown operator %q", sym)
}

// Precedence returns 1 for + and -, 2 for * and /, and 0 for grouping.
func (o Operator) Precedence() int {
	switch o {
	case OpAdd, OpSubtract:
		return 1
	case OpMultiply, OpDivide:
		return 2
	default:
		return 0
	}
}

// IsArithmetic reports whether o is one of the four binary operators.
func (o Operator) IsArithmetic() bool {
	return o >= OpAdd && o <= OpDivide
}

// IsGrouping reports whether o is a parenthesis.
func (o Operator) IsGrouping() bool {
	return o == OpLeftGroup || o == OpRightGroup
}

func (o Operator) valid() bool {
	_, ok := operatorSymbols[o]
	return ok
}

// String returns the operator's symbol.
func (o Operator) String() string {
	if s, ok := operatorSymbols[o]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// Operand is a leaf value of an expression: a Variable or a Constant.
type Operand interface {
	fmt.Stringer
	isOperand()
}

// Constant is a literal number.
type Constant float64

func (Constant) isOperand() {}

// String formats the constant in its shortest exact form.
func (c Constant) String() string {
	return strconv.FormatFloat(float64(c), 'g', -1, 64)
}

func (Variable) isOperand() {}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// TokenKind tags a Token as an operand or an operator.
type TokenKind int

const (
	TokenOperand TokenKind = iota + 1
	TokenOperator
)

// Token is one element of a decoded expression.
type Token struct {
	Kind     TokenKind
	Operand  Operand
	Operator Operator
}

// Lit returns an operand token for a constant.
func Lit(v float64) Token {
	return Token{Kind: TokenOperand, Operand: Constant(v)}
}

// Var returns an operand token for a variable.
func Var(v Variable) Token {
	return Token{Kind: TokenOperand, Operand: v}
}

// Op returns an operator token.
func Op(op Operator) Token {
	return Token{Kind: TokenOperator, Operator: op}
}

// Tokens tags a mixed list of Variables, float64 constants, and Operators.
// Any other element type is reported as malformed.
func Tokens(items ...any) ([]Token, error) {
	out := make([]Token, 0, len(items))
	for i, it := range items {
		switch v := it.(type) {
		case Variable:
			out = append(out, Var(v))
		case Constant:
			out = append(out, Lit(float64(v)))
		case float64:
			out = append(out, Lit(v))
		case int:
			out = append(out, Lit(float64(v)))
		case Operator:
			out = append(out, Op(v))
		default:
			return nil, compileErr(MalformedExpression, i, "unsupported token type %T", it)
		}
	}
	return out, nil
}
