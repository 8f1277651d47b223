package link

import (
	"encoding/json"
	"net/http"
)

// Outcome classifies how an operation ended.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeValidationError Outcome = "validation_error"
	OutcomeReauthRequired  Outcome = "reauth_required"
	OutcomeUpstreamError   Outcome = "upstream_error"
	OutcomeTransportError  Outcome = "transport_error"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeProblem = "application/problem+json"
)

// Response is the complete result of a facade operation. The HTTP layer
// writes it verbatim; Outcome and ErrorCode are metadata for logging and
// auditing and are not sent to the caller.
type Response struct {
	Status      int
	ContentType string
	Body        []byte

	Outcome   Outcome
	ErrorCode string
}

func jsonResponse(status int, outcome Outcome, v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		// Only fixed response structs are marshalled here.
		return problemResponse(http.StatusInternalServerError, outcome, "failed to encode response")
	}
	return Response{
		Status:      status,
		ContentType: contentTypeJSON,
		Body:        body,
		Outcome:     outcome,
	}
}

func rawJSONResponse(status int, body []byte) Response {
	return Response{
		Status:      status,
		ContentType: contentTypeJSON,
		Body:        body,
		Outcome:     OutcomeSuccess,
	}
}

func problemResponse(status int, outcome Outcome, detail string) Response {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	body, _ := json.Marshal(Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
	return Response{
		Status:      status,
		ContentType: contentTypeProblem,
		Body:        body,
		Outcome:     outcome,
	}
}

// ValidationFailure builds the 400 response for a missing required field.
func ValidationFailure(field string) Response {
	return jsonResponse(http.StatusBadRequest, OutcomeValidationError, validationError{Error: field + " is required"})
}

// BadRequest builds a 400 response with a free-form message, used for bodies
// that cannot be decoded at all.
func BadRequest(message string) Response {
	return jsonResponse(http.StatusBadRequest, OutcomeValidationError, validationError{Error: message})
}
