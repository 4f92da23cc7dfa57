package backpack

import (
	"errors"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const maxErrorBodyBytes = 512

// APIError carries the HTTP detail of a failed call. It is joined with one of the
// core sentinels so callers can use errors.Is for the kind and AsAPIError for the detail.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Body    string
}

func (e APIError) Error() string {
	var b strings.Builder
	b.WriteString("backpack ")
	b.WriteString(e.Op)
	b.WriteString(": http ")
	b.WriteString(strconv.Itoa(e.Status))
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Body != "":
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e APIError) HTTPStatus() int { return e.Status }

func (e APIError) ResponseBody() string { return e.Body }

func parseAPIError(op string, status int, body []byte, kind error) error {
	apiErr := APIError{
		Op:     op,
		Status: status,
		Body:   truncateBody(body),
	}
	var payload apiErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = strings.TrimSpace(payload.Code)
		apiErr.Message = strings.TrimSpace(payload.Message)
	}
	if kind == nil {
		return apiErr
	}
	return errors.Join(apiErr, kind)
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes] + "..."
	}
	return s
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
