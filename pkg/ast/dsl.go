package ast

// Builders without source positions, mostly for tests and embedding hosts.

func Str(value string) *Literal {
	return NewLiteral(value, Span{})
}

func Num(value float64) *Literal {
	return NewLiteral(value, Span{})
}

func Bool(value bool) *Literal {
	return NewLiteral(value, Span{})
}

func ID(name string) *Variable {
	return NewVariable(name, Span{})
}

func Call(operator Expression, args ...Expression) *Apply {
	return NewApply(operator, args, Span{})
}

// CallNamed is Call with a variable operator.
func CallNamed(name string, args ...Expression) *Apply {
	return Call(ID(name), args...)
}
