package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cruscotto/internal/core"
	"cruscotto/internal/fetch"
	"cruscotto/internal/log"
	"cruscotto/internal/middleware/trace"
	"cruscotto/internal/palette"
)

// parseWindow reads from/to (YYYY-MM-DD) from the query. With neither set
// the window is the last defaultDays days ending today. With one set, the
// other end is derived from defaultDays.
func parseWindow(q url.Values, now time.Time, defaultDays int) (core.Window, error) {
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))

	switch {
	case from == "" && to == "":
		return core.LastDays(defaultDays, now), nil
	case from == "":
		t, err := core.ParseDate(to)
		if err != nil {
			return core.Window{}, err
		}
		from = core.FormatDate(t.AddDate(0, 0, -defaultDays))
	case to == "":
		to = core.FormatDate(now)
	}
	return core.ParseWindow(from, to)
}

// parseList splits a comma separated query value, trimming blanks and
// keeping order and duplicates.
func parseList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// statusForError maps domain and upstream errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidWindow),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, palette.ErrInvalidColor):
		return http.StatusBadRequest
	case errors.Is(err, fetch.ErrRequestFailed),
		errors.Is(err, fetch.ErrDecodeFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and sends the JSON error envelope. Server-side
// failures hide the error text from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	logger := log.FromContext(r.Context())

	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "Request failed", log.FieldError, err)
		msg = "internal error"
	case status >= 500:
		logger.WarnContext(r.Context(), "Upstream failure", log.FieldError, err)
	default:
		logger.DebugContext(r.Context(), "Rejected request", log.FieldError, err)
	}

	ErrorResponse(status, msg).
		RequestID(trace.GetRequestID(r.Context())).
		Write(w)
}
