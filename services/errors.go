package services

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCheckedIn means the user already has a check-in for today. Nothing was written.
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	// ErrInvalidMoodTag means the mood was rejected before any write.
	ErrInvalidMoodTag = errors.New("invalid mood tag")
	// ErrStorageUnavailable wraps persistence failures. The operation may be retried.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrNotFriends    = errors.New("not friends")
)

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
