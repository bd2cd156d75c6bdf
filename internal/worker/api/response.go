package api

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// APIError is the body of every error response, including validation
// failures. Implements huma.StatusError.
type APIError struct {
	status int
	OK     bool   `json:"ok"`
	Err    string `json:"error"`
}

func (e *APIError) Error() string  { return e.Err }
func (e *APIError) GetStatus() int { return e.status }

// InitErrors overrides huma's default error factory so all error responses
// use the {ok, error} format.
func InitErrors() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		detail := msg
		if len(errs) > 0 {
			parts := make([]string, len(errs))
			for i, e := range errs {
				parts[i] = e.Error()
			}
			detail = msg + ": " + strings.Join(parts, "; ")
		}
		return &APIError{status: status, OK: false, Err: detail}
	}
}

type OKBody struct {
	OK bool `json:"ok"`
}

type OKOutput struct {
	Body OKBody
}

func ok() *OKOutput {
	return &OKOutput{Body: OKBody{OK: true}}
}
