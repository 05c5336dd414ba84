package regen

import "errors"

var (
	ErrPublishFailure  = errors.New("map publish failed")
	ErrUnknownEntity   = errors.New("map entity is not tracked")
	ErrAlreadyTracked  = errors.New("map entity is already tracked")
	ErrTickInProgress  = errors.New("regeneration tick already in progress")
	ErrInvalidInterval = errors.New("tick interval must be positive")
)
