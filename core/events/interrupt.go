package events

// Interrupt reports that the pipeline is paused awaiting a human decision.
type Interrupt struct {
	Base
	SessionToken string
	Message      string
}

func (e Interrupt) String() string { return "interrupt" }

func NewInterrupt(sessionToken, message string) Interrupt {
	return Interrupt{Base: NewBase(KindInterrupt), SessionToken: sessionToken, Message: message}
}
