package strategy

import (
	"errors"
	"fmt"

	"strategylab/internal/domain"
	"strategylab/internal/expr"
)

// TokenSpec is the wire form of one expression token.
//
//	{"type": "variable", "window": 20, "kind": "high"}
//	{"type": "constant", "value": 0.95}
//	{"type": "operator", "symbol": "*"}
type TokenSpec struct {
	Type   string   `json:"type" yaml:"type"`
	Window int      `json:"window,omitempty" yaml:"window,omitempty"`
	Kind   string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Value  *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Symbol string   `json:"symbol,omitempty" yaml:"symbol,omitempty"`
}

// ConditionSpec is "left_operand condition right_operand".
type ConditionSpec struct {
	Left      []TokenSpec `json:"left_operand" yaml:"left_operand"`
	Condition string      `json:"condition" yaml:"condition"`
	Right     []TokenSpec `json:"right_operand" yaml:"right_operand"`
}

// BuiltinSpec selects a registered strategy by name.
type BuiltinSpec struct {
	Name   string `json:"name" yaml:"name"`
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// Spec is a decoded strategy submission. Either Builtin is set, or both
// EnterLong and ExitLong are; a mix of the two is rejected.
type Spec struct {
	Name      string         `json:"name" yaml:"name"`
	Builtin   *BuiltinSpec   `json:"builtin,omitempty" yaml:"builtin,omitempty"`
	EnterLong *ConditionSpec `json:"enter_long,omitempty" yaml:"enter_long,omitempty"`
	ExitLong  *ConditionSpec `json:"exit_long,omitempty" yaml:"exit_long,omitempty"`
}

// Build validates and compiles the spec into a fresh Strategy. Builtins are
// resolved through reg, which may be nil for specs without a builtin.
func (s *Spec) Build(reg *Registry) (Strategy, error) {
	if s.Builtin != nil {
		if s.EnterLong != nil || s.ExitLong != nil {
			return nil, &domain.ConfigError{Field: "builtin", Reason: "cannot be combined with enter_long or exit_long"}
		}
		if reg == nil {
			return nil, &domain.ConfigError{Field: "builtin", Reason: "no registry available"}
		}
		return reg.New(s.Builtin.Name, s.Builtin.Params)
	}
	if s.EnterLong == nil || s.ExitLong == nil {
		return nil, &domain.ConfigError{Field: "strategy", Reason: "enter_long and exit_long are both required"}
	}

	exit, err := s.ExitLong.build(ExitLong)
	if err != nil {
		return nil, fmt.Errorf("exit_long: %w", err)
	}
	entry, err := s.EnterLong.build(EnterLong)
	if err != nil {
		return nil, fmt.Errorf("enter_long: %w", err)
	}
	return NewCombined(exit, entry)
}

// Validate compiles the spec and discards the result.
func (s *Spec) Validate(reg *Registry) error {
	_, err := s.Build(reg)
	return err
}

func (c *ConditionSpec) build(action Action) (*Condition, error) {
	cmp, err := ParseComparison(c.Condition)
	if err != nil {
		return nil, err
	}
	left, err := CompileTokens(c.Left)
	if err != nil {
		return nil, fmt.Errorf("left_operand: %w", err)
	}
	right, err := CompileTokens(c.Right)
	if err != nil {
		return nil, fmt.Errorf("right_operand: %w", err)
	}
	return NewCondition(left, cmp, right, action)
}

// CompileTokens decodes wire tokens and compiles them.
func CompileTokens(specs []TokenSpec) (*expr.Expression, error) {
	toks := make([]expr.Token, 0, len(specs))
	for i, ts := range specs {
		tok, err := ts.decode()
		if err != nil {
			var ce *expr.CompileError
			if errors.As(err, &ce) && ce.Pos < 0 {
				ce.Pos = i
			}
			return nil, err
		}
		toks = append(toks, tok)
	}
	return expr.Compile(toks)
}

func (ts TokenSpec) decode() (expr.Token, error) {
	switch ts.Type {
	case "variable":
		kind, err := expr.ParseStatKind(ts.Kind)
		if err != nil {
			return expr.Token{}, err
		}
		v, err := expr.NewVariable(ts.Window, kind)
		if err != nil {
			return expr.Token{}, err
		}
		return expr.Var(v), nil
	case "constant":
		if ts.Value == nil {
			return expr.Token{}, &expr.CompileError{Kind: expr.MalformedExpression, Pos: -1, Msg: "constant without value"}
		}
		return expr.Lit(*ts.Value), nil
	case "operator":
		op, err := expr.ParseOperator(ts.Symbol)
		if err != nil {
			return expr.Token{}, err
		}
		return expr.Op(op), nil
	}
	return expr.Token{}, &expr.CompileError{Kind: expr.MalformedExpression, Pos: -1, Msg: fmt.Sprintf("unknown token type %q", ts.Type)}
}
