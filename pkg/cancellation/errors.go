package cancellation

import (
	"errors"

	"cancelflow-be/internal/repository/contract"
)

var (
	ErrRequestNotFound     = errors.New("cancellation request not found")
	ErrSubscriptionMissing = errors.New("subscription not found")
	ErrActiveRequestExists = contract.ErrActiveRequestExists
	ErrNotConfirmable      = errors.New("cancellation request is not awaiting confirmation")
	ErrNotRetryable        = errors.New("only failed cancellation requests can be retried")
	ErrNotOwner            = errors.New("cancellation request belongs to another user")
	ErrBusy                = errors.New("cancellation request is being updated")
)
