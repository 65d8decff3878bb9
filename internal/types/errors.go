// README: Error categories shared by every module; module errors wrap one of these.
package types

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")
)

// categorized carries a caller-facing message while still matching its category with errors.Is.
type categorized struct {
	msg string
	cat error
}

func (e *categorized) Error() string { return e.msg }
func (e *categorized) Unwrap() error { return e.cat }

func NotFound(msg string) error   { return &categorized{msg: msg, cat: ErrNotFound} }
func Conflict(msg string) error   { return &categorized{msg: msg, cat: ErrConflict} }
func BadRequest(msg string) error { return &categorized{msg: msg, cat: ErrBadRequest} }
