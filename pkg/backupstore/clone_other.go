//go:build !linux

package backupstore

import "errors"

// cloneRange has no reflink equivalent outside Linux; callers always fall
// back to a byte copy.
func cloneRange(src, dst string, offset, length int64) error {
	return errors.New("reflink clone not supported on this platform")
}
