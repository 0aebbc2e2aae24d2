package expr

// Node is a binary expression tree node. A leaf holds an Operand; an
// internal node holds an arithmetic Op and owns both children.
type Node struct {
	Operand Operand
	Op      Operator
	Left    *Node
	Right   *Node
}

// IsLeaf reports whether n holds an operand.
func (n *Node) IsLeaf() bool {
	return n.Operand != nil
}

// Expression is a compiled, immutable expression tree. The zero value is not
// usable; obtain one from Compile.
type Expression struct {
	root *Node
}

// Root returns the tree's root node. Callers must not mutate it.
func (e *Expression) Root() *Node { return e.root }

// String renders the expression fully parenthesized.
func (e *Expression) String() string { return Format(e.root) }

// Compile turns an infix token sequence into an expression tree using the
// two-stack shunting-yard method. Equal precedence reduces left to right.
// Grouping tokens never appear in the resulting tree.
func Compile(tokens []Token) (*Expression, error) {
	var (
		output []*Node
		ops    []Operator
		opPos  []int
	)

	// reduce pops one operator and binds the two most recent operands; the
	// first popped operand is the right child.
	reduce := func(pos int) error {
		op := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		opPos = opPos[:len(opPos)-1]
		if len(output) < 2 {
			return compileErr(MalformedExpression, pos, "operator %s is missing an operand", op)
		}
		right := output[len(output)-1]
		left := output[len(output)-2]
		output = output[:len(output)-2]
		output = append(output, &Node{Op: op, Left: left, Right: right})
		return nil
	}

	for i, tok := range tokens {
		switch tok.Kind {
		case TokenOperand:
			if tok.Operand == nil {
				return nil, compileErr(MalformedExpression, i, "operand token without a value")
			}
			if v, ok := tok.Operand.(Variable); ok {
				if _, err := NewVariable(v.Window, v.Kind); err != nil {
					if !v.Kind.valid() {
						return nil, compileErr(UnknownVariableKind, i, "unknown variable kind %q", v.Kind)
					}
					return nil, err
				}
			}
			output = append(output, &Node{Operand: tok.Operand})

		case TokenOperator:
			op := tok.Operator
			switch {
			case !op.valid():
				return nil, compileErr(UnknownOperatorSymbol, i, "unknown operator %d", int(op))

			case op == OpLeftGroup:
				ops = append(ops, op)
				opPos = append(opPos, i)

			case op == OpRightGroup:
				for len(ops) > 0 && ops[len(ops)-1] != OpLeftGroup {
					if err := reduce(i); err != nil {
						return nil, err
					}
				}
				if len(ops) == 0 {
					return nil, compileErr(UnbalancedParentheses, i, "unmatched )")
				}
				ops = ops[:len(ops)-1]
				opPos = opPos[:len(opPos)-1]

			default:
				for len(ops) > 0 && ops[len(ops)-1] != OpLeftGroup &&
					ops[len(ops)-1].Precedence() >= op.Precedence() {
					if err := reduce(i); err != nil {
						return nil, err
					}
				}
				ops = append(ops, op)
				opPos = append(opPos, i)
			}

		default:
			return nil, compileErr(MalformedExpression, i, "token has no kind")
		}
	}

	for len(ops) > 0 {
		if ops[len(ops)-1] == OpLeftGroup {
			return nil, compileErr(UnbalancedParentheses, opPos[len(opPos)-1], "unmatched (")
		}
		if err := reduce(-1); err != nil {
			return nil, err
		}
	}

	if len(output) != 1 {
		return nil, compileErr(MalformedExpression, -1, "expected one expression, found %d", len(output))
	}
	return &Expression{root: output[0]}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(tokens []Token) *Expression {
	e, err := Compile(tokens)
	if err != nil {
		panic(err)
	}
	return e
}
