package requests

import (
	"errors"
	"fmt"

	"crms/internal/domain/request"
	"crms/internal/ports"
)

var (
	ErrDetailClosed      = errors.New("request detail is closed")
	ErrAlreadySubscribed = errors.New("lookup cache is already subscribed")
)

// connectivityError tags a store failure so callers can show it to the user.
func connectivityError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, request.ErrConnectivity) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, request.ErrConnectivity, err)
}

// remoteError classifies a failed store call made on behalf of a single request.
func remoteError(op string, requestID string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ports.ErrDocumentNotFound) {
		return fmt.Errorf("%s: %w: %s", op, request.ErrRequestNotFound, requestID)
	}
	return connectivityError(op, err)
}
