//go:build !windows

package persist

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsContention_Errno(t *testing.T) {
	assert.True(t, IsContention(&os.PathError{Op: "open", Path: "/x", Err: syscall.EBUSY}))
	assert.True(t, IsContention(&os.PathError{Op: "open", Path: "/x", Err: syscall.EAGAIN}))
	assert.False(t, IsContention(&os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}))
}
