package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/gmaxsoft/elasticsearch-project/pkg/errors"
)

// DownstreamErrorResponse mirrors httputil.ErrorResponse as seen on the wire.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError. Structured envelopes keep their code and message; other
// bodies produce a generic error carrying the status and raw text.
// The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, serviceName)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return apperrors.ServiceUnavailable(serviceName+" unavailable", fmt.Errorf("status 503: %s", bodyBytes))
	}
	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

// mapDownstreamError translates a downstream status and error code into an
// AppError with the same semantics.
func mapDownstreamError(status int, code, message, serviceName string) error {
	cause := fmt.Errorf("%s: %s", serviceName, message)

	switch {
	case code == "INDEX_UNAVAILABLE":
		return apperrors.IndexUnavailable(cause)
	case code == "SEARCH_FAILED":
		return apperrors.SearchFailed(message, cause)
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(cause.Error())
	case status == http.StatusConflict:
		return apperrors.Conflict(cause.Error())
	case status == http.StatusGone:
		return apperrors.Gone(cause.Error())
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(cause.Error(), nil)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: cause.Error(),
			Status:  status,
		}
	}
}
