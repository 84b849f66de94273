package recordbase

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"

	"github.com/recordbase/recordbase_sdk_go/internal/pbapi"
)

var (
	// ErrCancelled is the cancellation cause of requests cancelled through
	// CancelRequest or CancelAllRequests.
	ErrCancelled = errors.New("recordbase: request cancelled")
	// ErrAutoCancelled is the cause of a request superseded by a newer one
	// under the same cancellation key.
	ErrAutoCancelled = fmt.Errorf("%w: superseded by a newer request", ErrCancelled)
)

const (
	msgAutoCancelled = "The request was auto-cancelled."
	msgRefused       = "Failed to connect to the server. Try changing the client URL from localhost to 127.0.0.1."
	msgNotFound      = "The requested resource wasn't found."
)

// ResponseError is the single error shape returned by the dispatcher.
//
// A cancelled request has IsAbort set and no Status. A transport failure has
// no Status and carries the underlying error in OriginalErr. A response with
// status >= 400 carries Status, the decoded body in Data and the Response.
type ResponseError struct {
	URL         string
	Status      int
	Data        map[string]any
	IsAbort     bool
	OriginalErr error
	Response    *http.Response
	Message     string
}

func (e *ResponseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Status > 0:
		return fmt.Sprintf("recordbase: %s (status=%d url=%s)", e.Message, e.Status, e.URL)
	case e.OriginalErr != nil:
		return fmt.Sprintf("recordbase: %s (url=%s): %v", e.Message, e.URL, e.OriginalErr)
	default:
		return fmt.Sprintf("recordbase: %s (url=%s)", e.Message, e.URL)
	}
}

func (e *ResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.OriginalErr
}

// IsCancelled reports whether the request was superseded or explicitly cancelled.
func (e *ResponseError) IsCancelled() bool {
	return e != nil && e.IsAbort
}

// IsTransport reports whether the request failed before any response arrived.
func (e *ResponseError) IsTransport() bool {
	return e != nil && !e.IsAbort && e.Status == 0 && e.OriginalErr != nil
}

// AsResponseError unwraps err into a *ResponseError.
func AsResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsCancelled reports whether err is a cancelled-request error.
func IsCancelled(err error) bool {
	re, ok := AsResponseError(err)
	return ok && re.IsCancelled()
}

func newCancelledError(url string, cause error) *ResponseError {
	if cause == nil {
		cause = ErrCancelled
	}
	return &ResponseError{
		URL:         url,
		Data:        map[string]any{},
		IsAbort:     true,
		OriginalErr: cause,
		Message:     msgAutoCancelled,
	}
}

func newServerError(url string, resp *http.Response, data map[string]any) *ResponseError {
	if data == nil {
		data = map[string]any{}
	}
	return &ResponseError{
		URL:      url,
		Status:   resp.StatusCode,
		Data:     data,
		Response: resp,
		Message:  pbapi.Message(data),
	}
}

func newNotFoundError(url string) *ResponseError {
	return &ResponseError{
		URL:    url,
		Status: http.StatusNotFound,
		Data: map[string]any{
			"code":    http.StatusNotFound,
			"message": msgNotFound,
			"data":    map[string]any{},
		},
		Message: msgNotFound,
	}
}

// normalizeError converts any failure into a *ResponseError. Errors that are
// already normalized pass through unchanged.
func normalizeError(err error, url string, resp *http.Response) *ResponseError {
	if re, ok := AsResponseError(err); ok {
		return re
	}
	out := &ResponseError{
		URL:         url,
		Data:        map[string]any{},
		OriginalErr: err,
		Response:    resp,
		Message:     pbapi.GenericMessage,
	}
	if resp != nil {
		out.Status = resp.StatusCode
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		out.Message = msgRefused
	}
	return out
}
