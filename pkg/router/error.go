package router

import "net/http"

// JsonError is the error body of every failed API call: {"error": "<message>"}.
// Status only selects the HTTP status and is never written to the body.
// Handlers may wrap a JsonError around the underlying cause with fmt.Errorf and %w,
// the cause is logged and the JsonError is what the client sees.
type JsonError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func NewJsonError(status int, message string) JsonError {
	return JsonError{Status: status, Message: message}
}

// StatusCode defaults to 500 when no status was set.
func (e JsonError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

func (e JsonError) Error() string {
	return e.Message
}
