package events

// Failure carries an error the server reported for the run.
type Failure struct {
	Base
	Message string
}

func (e Failure) String() string { return "failure: " + e.Message }

func NewFailure(message string) Failure {
	return Failure{Base: NewBase(KindFailure), Message: message}
}
