package service

import (
	"errors"
	"fmt"
)

// Common service errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage failure")
)

// User / queue specific errors
var (
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrUserAlreadyExists = fmt.Errorf("%w: username already taken", ErrValidation)
	ErrAlreadyQueued     = fmt.Errorf("%w: user already in queue", ErrConflict)
	ErrNotQueued         = fmt.Errorf("%w: user not in queue", ErrValidation)
	ErrPlayerBusy        = fmt.Errorf("%w: user is not idle", ErrInvalidState)
	ErrUnknownMode       = fmt.Errorf("%w: unsupported game mode", ErrValidation)
)

// Match service specific errors
var (
	ErrMatchNotFound = fmt.Errorf("match %w", ErrNotFound)
)

// storageErr 분류되지 않은 저장소 에러를 ErrStorage로 감싼다 (원인은 체인에 유지)
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// passThrough 이미 분류된 서비스 에러는 그대로, 나머지는 ErrStorage
func passThrough(op string, err error) error {
	for _, known := range []error{ErrNotFound, ErrValidation, ErrInvalidState, ErrConflict, ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	return storageErr(op, err)
}
