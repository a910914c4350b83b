package modules

const (
	codeServerError   = -32000
	codeUnauthorized  = -32001
	codeInvalidParams = -32602

	// Error taxonomy codes: the class a failure belongs to matters more to
	// callers than the individual sentinel.
	codeUnavailable = -32030
	codeCapacity    = -32031
	codeSafety      = -32032
	codeMechanical  = -32033
)

type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}
