package reconcile

import (
	"errors"
	"fmt"
)

// ErrMalformedArchive は errors.Is で MalformedArchiveError を判定するための番兵。
var ErrMalformedArchive = errors.New("MalformedArchive")

// MalformedArchiveError はブック自体を読めないときのエラー。取り込み全体が失敗する。
type MalformedArchiveError struct {
	Reason string
	Err    error
}

func (e *MalformedArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed archive: %s: %v", e.Reason, e.Err)
	}
	return "malformed archive: " + e.Reason
}

func (e *MalformedArchiveError) Unwrap() error { return e.Err }

func (e *MalformedArchiveError) Is(target error) bool { return target == ErrMalformedArchive }

func malformed(reason string, err error) error {
	return &MalformedArchiveError{Reason: reason, Err: err}
}
