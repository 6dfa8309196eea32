package modelclient

import (
	"errors"
	"fmt"
)

var (
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	ErrGenerationEmpty       = errors.New("generation returned no content")
	ErrGenerationMalformed   = errors.New("generation response malformed")
)

type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindEmpty       Kind = "empty"
	KindMalformed   Kind = "malformed"
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnavailable:
		return ErrGenerationUnavailable
	case KindEmpty:
		return ErrGenerationEmpty
	case KindMalformed:
		return ErrGenerationMalformed
	default:
		return nil
	}
}

// GenerationError describes a failed chat completion call. StatusCode is zero
// when no HTTP response was received.
type GenerationError struct {
	Kind       Kind
	StatusCode int
	Detail     string
	Err        error
}

func (e *GenerationError) Error() string {
	msg := "generation " + string(e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *GenerationError) Is(target error) bool {
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func unavailable(statusCode int, detail string, err error) *GenerationError {
	return &GenerationError{Kind: KindUnavailable, StatusCode: statusCode, Detail: detail, Err: err}
}

func empty(detail string) *GenerationError {
	return &GenerationError{Kind: KindEmpty, Detail: detail}
}

func malformed(statusCode int, detail string, err error) *GenerationError {
	return &GenerationError{Kind: KindMalformed, StatusCode: statusCode, Detail: detail, Err: err}
}
