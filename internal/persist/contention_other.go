//go:build !windows

package persist

import (
	"errors"
	"syscall"
)

func isPlatformContention(err error) bool {
	return errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ETXTBSY)
}
