package sandbox

type stmt interface {
	stmtLine() int
}

type assignStmt struct {
	line int
	name string
	expr expr
}

type exprStmt struct {
	line int
	expr expr
}

// importStmt is accepted and ignored; the namespace is fixed.
type importStmt struct {
	line int
}

func (s *assignStmt) stmtLine() int { return s.line }
func (s *exprStmt) stmtLine() int   { return s.line }
func (s *importStmt) stmtLine() int { return s.line }

type expr interface {
	exprPos() (int, int)
}

type pos struct {
	line int
	col  int
}

func (p pos) exprPos() (int, int) { return p.line, p.col }

type literalExpr struct {
	pos
	value any
}

type listExpr struct {
	pos
	items []expr
}

type nameExpr struct {
	pos
	name string
}

type attrExpr struct {
	pos
	target expr
	name   string
}

type keywordArg struct {
	name  string
	value expr
}

type callExpr struct {
	pos
	fn       expr
	args     []expr
	keywords []keywordArg
}

type indexExpr struct {
	pos
	target expr
	key    expr
}

type unaryExpr struct {
	pos
	op      tokenType
	operand expr
}

type binaryExpr struct {
	pos
	op    tokenType
	left  expr
	right expr
}

type fstringPart struct {
	text   string
	value  expr
	format string
}

type fstringExpr struct {
	pos
	parts []fstringPart
}
