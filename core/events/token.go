package events

// Token is an append-only fragment of the report.
type Token struct {
	Base
	Content string
}

func (e Token) String() string { return e.Content }

func NewToken(content string) Token {
	return Token{Base: NewBase(KindToken), Content: content}
}
