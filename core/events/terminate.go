package events

// Terminate marks the end of the stream as announced by the server.
type Terminate struct{ Base }

func NewTerminate() Terminate {
	return Terminate{Base: NewBase(KindTerminate)}
}
