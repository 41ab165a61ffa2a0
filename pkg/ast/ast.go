package ast

type NodeType string

const (
	NodeLiteral  NodeType = "Literal"
	NodeVariable NodeType = "Variable"
	NodeApply    NodeType = "Apply"
)

// Node is implemented by the three Egg expression variants only.
type Node interface {
	NodeType() NodeType
	Span() Span
	isNode()
}

type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type nodeImpl struct {
	Type NodeType `json:"type"`
	span Span
}

func newNodeImpl(kind NodeType, span Span) nodeImpl {
	return nodeImpl{Type: kind, span: span}
}

func (n nodeImpl) NodeType() NodeType { return n.Type }
func (n nodeImpl) Span() Span         { return n.span }
func (nodeImpl) isNode()              {}

// Expression is the closed set {*Literal, *Variable, *Apply}. Nodes are
// never mutated once a constructor has returned them.
type Expression interface {
	Node
	expressionNode()
}

type expressionMarker struct{}

func (expressionMarker) expressionNode() {}

// Literal holds a string, float64 or bool.
type Literal struct {
	nodeImpl
	expressionMarker

	Value any `json:"value"`
}

func NewLiteral(value any, span Span) *Literal {
	switch value.(type) {
	case string, float64, bool:
	default:
		panic("ast: literal value must be string, float64 or bool")
	}
	return &Literal{nodeImpl: newNodeImpl(NodeLiteral, span), Value: value}
}

type Variable struct {
	nodeImpl
	expressionMarker

	Name string `json:"name"`
}

func NewVariable(name string, span Span) *Variable {
	return &Variable{nodeImpl: newNodeImpl(NodeVariable, span), Name: name}
}

type Apply struct {
	nodeImpl
	expressionMarker

	Operator  Expression   `json:"operator"`
	Arguments []Expression `json:"arguments"`
}

func NewApply(operator Expression, arguments []Expression, span Span) *Apply {
	if arguments == nil {
		arguments = []Expression{}
	}
	return &Apply{nodeImpl: newNodeImpl(NodeApply, span), Operator: operator, Arguments: arguments}
}

// OperatorName returns the operator's name when it is a bare variable.
func (a *Apply) OperatorName() (string, bool) {
	if a == nil {
		return "", false
	}
	if v, ok := a.Operator.(*Variable); ok {
		return v.Name, true
	}
	return "", false
}
