package contract

import "errors"

var (
	// ErrActiveRequestExists is returned when the subscription already has a
	// pending or processing cancellation request.
	ErrActiveRequestExists = errors.New("subscription already has an active cancellation request")
)
