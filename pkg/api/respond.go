package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/types"
)

// statusClientClosedRequest is the nginx convention for a client that
// went away before the response was written.
const statusClientClosedRequest = 499

// errorBody is the wire shape of every error response
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code       types.Code `json:"code"`
	Message    string     `json:"message"`
	RequestID  string     `json:"requestId"`
	Details    any        `json:"details,omitempty"`
	RetryAfter int        `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError renders the error envelope. Rate-limit errors additionally
// carry Retry-After; client cancellation maps to 499.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := types.CodeOf(err)
	status := types.HTTPStatus(code)
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		status = statusClientClosedRequest
	}

	detail := errorDetail{
		Code:      code,
		Message:   publicMessage(err, code),
		RequestID: middleware.GetReqID(r.Context()),
		Details:   types.DetailsOf(err),
	}
	if code == types.CodeRateLimited {
		if ra := retryAfterOf(err); ra > 0 {
			detail.RetryAfter = ra
			w.Header().Set("Retry-After", strconv.Itoa(ra))
		}
	}

	if status >= http.StatusInternalServerError {
		logger := log.WithRequestID(detail.RequestID)
		logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: detail})
}

// publicMessage hides internal failure detail behind generic text for
// 5xx-class codes so no upstream specifics leak to clients.
func publicMessage(err error, code types.Code) string {
	switch code {
	case types.CodeStorageReadFailed, types.CodeStorageWriteFailed,
		types.CodeDatabaseQueryFailed, types.CodeInternal:
		return "internal server error"
	}
	var e *types.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// rateLimitedError carries the seconds-until-reset through the envelope
type rateLimitedError struct {
	inner      *types.Error
	retryAfter int
}

func (e *rateLimitedError) Error() string { return e.inner.Error() }
func (e *rateLimitedError) Unwrap() error { return e.inner }

func newRateLimitedError(resetAt time.Time) error {
	// Floor to 1: at the instant of reset the client should still wait
	retry := int(time.Until(resetAt).Seconds())
	if retry < 1 {
		retry = 1
	}
	return &rateLimitedError{
		inner:      types.E(types.CodeRateLimited, "rate limit exceeded, retry after %d seconds", retry),
		retryAfter: retry,
	}
}

func retryAfterOf(err error) int {
	var rl *rateLimitedError
	if errors.As(err, &rl) {
		return rl.retryAfter
	}
	return 0
}

// whatsAppShareURL formats the share link bit-exactly:
// "{verseText}" - {verseReference}\n{imageUrl}, query-escaped.
func whatsAppShareURL(verseText, verseReference, imageURL string) string {
	text := `"` + verseText + `" - ` + verseReference + "\n" + imageURL
	return "https://wa.me/?text=" + url.QueryEscape(text)
}
