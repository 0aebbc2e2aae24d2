package expr

import (
	"math"
	"strings"

	"strategylab/internal/domain"
)

// Evaluate computes the expression over bars and returns one value per bar.
// Division by zero yields NaN at that position; NaN propagates through every
// later operation.
func (e *Expression) Evaluate(bars []domain.Bar) []float64 {
	return evalNode(e.root, bars)
}

// Last returns the most recent value of the expression, or NaN for an empty
// window.
func (e *Expression) Last(bars []domain.Bar) float64 {
	return last(e.Evaluate(bars))
}

func evalNode(n *Node, bars []domain.Bar) []float64 {
	if n == nil {
		return nanSeries(len(bars))
	}
	if n.IsLeaf() {
		switch v := n.Operand.(type) {
		case Constant:
			out := make([]float64, len(bars))
			for i := range out {
				out[i] = float64(v)
			}
			return out
		case Variable:
			return v.Evaluate(bars)
		}
		return nanSeries(len(bars))
	}
	if !n.Op.IsArithmetic() {
		return nanSeries(len(bars))
	}

	left := evalNode(n.Left, bars)
	right := evalNode(n.Right, bars)
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = apply(n.Op, left[i], right[i])
	}
	return out
}

func apply(op Operator, l, r float64) float64 {
	switch op {
	case OpAdd:
		return l + r
	case OpSubtract:
		return l - r
	case OpMultiply:
		return l * r
	case OpDivide:
		if r == 0 {
			return math.NaN()
		}
		return l / r
	}
	return math.NaN()
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func last(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// Format renders a tree fully parenthesized, e.g. "((high(2) + low(2)) / 2)".
func Format(n *Node) string {
	var sb strings.Builder
	format(&sb, n)
	return sb.String()
}

func format(sb *strings.Builder, n *Node) {
	switch {
	case n == nil:
		sb.WriteString("<nil>")
	case n.IsLeaf():
		sb.WriteString(n.Operand.String())
	default:
		sb.WriteByte('(')
		format(sb, n.Left)
		sb.WriteByte(' ')
		sb.WriteString(n.Op.String())
		sb.WriteByte(' ')
		format(sb, n.Right)
		sb.WriteByte(')')
	}
}
