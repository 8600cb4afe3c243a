package engine

import "github.com/pkg/errors"

var (
	ErrEmptyHistory  = errors.New("cannot run inference on an empty history")
	ErrEmptyResponse = errors.New("engine returned no message")
)
