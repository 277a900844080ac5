// Package response renders every HTTP reply in one envelope:
// {success, data, meta} on success and {success, error, meta} on failure.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/tableside/pkg/errorbank"
)

// Envelope is the JSON body of every non-streaming response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    errorbank.Kind `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Builder collects status, payload, meta and error for one response.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the success status. Error responses take their
// status from the error kind unless a 4xx/5xx is set explicitly.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// WithCount records the number of items in a list payload.
func (b *Builder) WithCount(n int) *Builder {
	return b.WithMeta("count", n)
}

// Build writes the response.
func (b *Builder) Build() error {
	if b.err != nil {
		return b.buildError()
	}
	if b.status == http.StatusNoContent {
		return b.ctx.NoContent(http.StatusNoContent)
	}
	return b.ctx.JSON(b.status, Envelope{Success: true, Data: b.data, Meta: b.meta})
}

func (b *Builder) buildError() error {
	appErr := FromHTTPError(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}
	return b.ctx.JSON(status, Envelope{
		Error: &ErrorBody{
			Kind:    appErr.Kind(),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.meta,
	})
}

// FromHTTPError converts router errors such as unknown routes or wrong
// methods into the envelope's error kinds. Other errors go through errorbank.
func FromHTTPError(err error) *errorbank.AppError {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return errorbank.From(err)
	}
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	switch {
	case he.Code == http.StatusNotFound:
		return errorbank.NotFound(msg, errorbank.WithCause(err))
	case he.Code == http.StatusConflict:
		return errorbank.Conflict(msg, errorbank.WithCause(err))
	case he.Code == http.StatusUnprocessableEntity:
		return errorbank.Unprocessable(msg, errorbank.WithCause(err))
	case he.Code >= 400 && he.Code < 500:
		return errorbank.BadRequest(msg, errorbank.WithCause(err), errorbank.WithDetail("status", he.Code))
	default:
		return errorbank.Internal(msg, errorbank.WithCause(err))
	}
}
