package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrInvalidInput is returned by SetInput for identifiers outside the enumeration.
	ErrInvalidInput = errors.New("receiver: invalid input")

	// ErrPowerOnUnsupported is returned by SetPowerState(true). The HTTP interface has no
	// wake command; the receiver must be switched on with the remote or the front panel.
	ErrPowerOnUnsupported = errors.New("receiver: cannot turn power on via HTTP, use the remote or the power button on the receiver")

	// ErrUnexpectedPage is returned when the status page cannot be interpreted.
	ErrUnexpectedPage = errors.New("receiver: unexpected status page")
)

// StatusError reports a non-200 response from the receiver.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("receiver: unexpected response, status code %d", e.StatusCode)
}

// isDeviceAbsent classifies transport errors that mean the receiver is switched off
// or disconnected rather than broken.
func isDeviceAbsent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
