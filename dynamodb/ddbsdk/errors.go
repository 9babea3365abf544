package ddbsdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrConditionFailed is returned when a write's condition expression
	// did not hold.
	ErrConditionFailed = errors.New("condition check failed")
	// ErrStoreUnavailable is returned while the circuit breaker is open.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsConditionFailed reports whether err is a failed condition check, either
// already mapped to ErrConditionFailed or straight from the store.
func IsConditionFailed(err error) bool {
	if errors.Is(err, ErrConditionFailed) {
		return true
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConditionFailed(err) && !errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("%s: %w: %v", op, ErrConditionFailed, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// countsAsFailure decides whether an error says something about the
// store's health.
func countsAsFailure(err error) bool {
	if err == nil || IsConditionFailed(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
