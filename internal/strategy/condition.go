package strategy

import (
	"fmt"

	"strategylab/internal/domain"
	"strategylab/internal/expr"
)

// Comparison is the relation tested between the left and right operands of a
// Condition strategy.
type Comparison string

const (
	Greater      Comparison = ">"
	Less         Comparison = "<"
	Equal        Comparison = "="
	GreaterEqual Comparison = ">="
	LessEqual    Comparison = "<="
)

// ParseComparison validates a comparison symbol.
func ParseComparison(s string) (Comparison, error) {
	switch c := Comparison(s); c {
	case Greater, Less, Equal, GreaterEqual, LessEqual:
		return c, nil
	case "==":
		return Equal, nil
	}
	return "", &expr.CompileError{Kind: expr.UnknownOperatorSymbol, Pos: -1, Msg: fmt.Sprintf("unknown condition %q", s)}
}

// Holds applies the comparison. Any NaN operand makes it false.
func (c Comparison) Holds(l, r float64) bool {
	switch c {
	case Greater:
		return l > r
	case Less:
		return l < r
	case Equal:
		return l == r
	case GreaterEqual:
		return l >= r
	case LessEqual:
		return l <= r
	}
	return false
}

// Action is what a satisfied Condition asks for.
type Action string

const (
	EnterLong Action = "enter"
	ExitLong  Action = "exit"
)

// Signal returns the signal emitted when the condition holds.
func (a Action) Signal() domain.Signal {
	if a == EnterLong {
		return domain.SignalBuy
	}
	return domain.SignalSell
}

// Compile-time interface check.
var _ Strategy = (*Condition)(nil)

// Condition is a single-rule user strategy: "left <cmp> right" on the latest
// bar triggers Action.
type Condition struct {
	left   *expr.Expression
	cmp    Comparison
	right  *expr.Expression
	action Action

	leftValue  float64
	rightValue float64
}

// NewCondition builds a Condition from two compiled expressions.
func NewCondition(left *expr.Expression, cmp Comparison, right *expr.Expression, action Action) (*Condition, error) {
	if left == nil || right == nil {
		return nil, &domain.ConfigError{Field: "operand", Reason: "both operands are required"}
	}
	if _, err := ParseComparison(string(cmp)); err != nil {
		return nil, err
	}
	if action != EnterLong && action != ExitLong {
		return nil, &domain.ConfigError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}
	return &Condition{left: left, cmp: cmp, right: right, action: action}, nil
}

// NewVariableCondition is NewCondition with a bare variable on the left.
func NewVariableCondition(v expr.Variable, cmp Comparison, right *expr.Expression, action Action) (*Condition, error) {
	left, err := expr.Compile([]expr.Token{expr.Var(v)})
	if err != nil {
		return nil, err
	}
	return NewCondition(left, cmp, right, action)
}

// Name returns e.g. "enter when mvg(5) > (high(20) * 0.95)".
func (c *Condition) Name() string {
	return fmt.Sprintf("%s when %s %s %s", c.action, c.left, c.cmp, c.right)
}

// Update evaluates both operands and keeps their latest values.
func (c *Condition) Update(bars []domain.Bar) {
	c.leftValue = c.left.Last(bars)
	c.rightValue = c.right.Last(bars)
}

// Next emits the action's signal when the comparison holds, else hold.
func (c *Condition) Next() domain.Signal {
	if c.cmp.Holds(c.leftValue, c.rightValue) {
		return c.action.Signal()
	}
	return domain.SignalHold
}

// Values returns the operand values computed by the last Update.
func (c *Condition) Values() (left, right float64) {
	return c.leftValue, c.rightValue
}
