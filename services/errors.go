package services

// ServiceError is a caller-facing business error carrying the HTTP status
// the controller should answer with. Raw driver errors never cross the
// service boundary.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func newError(code int, message string) *ServiceError {
	return &ServiceError{StatusCode: code, Message: message}
}
