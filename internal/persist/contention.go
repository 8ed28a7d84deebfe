package persist

import "errors"

// ErrLocked reports that the target is held by another writer. File systems
// that cannot surface share violations natively (and test doubles) return it.
var ErrLocked = errors.New("target locked by another writer")

// IsContention reports whether err is a transient lock or share violation
// worth retrying. Uses errors.Is, so wrapped errors match.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLocked) {
		return true
	}
	return isPlatformContention(err)
}
