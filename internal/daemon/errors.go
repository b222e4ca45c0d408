package daemon

// Wire-level error codes. Handlers may return *Error to control the code;
// any other error is reported as a handler error.
const (
	CodeParseError     = "PARSE_ERROR"
	CodeMethodNotFound = "METHOD_NOT_FOUND"
	CodeHandlerError   = "HANDLER_ERROR"
	CodeTimeout        = "TIMEOUT"
)

// Error is a request error carrying a wire error code. It satisfies the
// error interface so handlers can return it directly.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError creates a coded request error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}
