package engine

import (
	"errors"
	"fmt"

	"github.com/p4th0r/sitefence/internal/privileged"
)

// Kind classifies apply failures.
type Kind string

const (
	// KindRead means the current hosts file could not be read.
	KindRead Kind = "read"
	// KindWrite means a staging file could not be written.
	KindWrite Kind = "write"
	// KindPrivileged means the privileged command failed or was canceled.
	KindPrivileged Kind = "privileged"
	// KindVerify means the hosts file does not reflect the requested state
	// after the privileged command reported success.
	KindVerify Kind = "verify"
)

// ApplyError is returned by Engine.Apply.
type ApplyError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *ApplyError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" for other errors.
func KindOf(err error) Kind {
	var ae *ApplyError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsCanceled reports whether err is a user-canceled authorization prompt.
func IsCanceled(err error) bool {
	return errors.Is(err, privileged.ErrAuthorizationCanceled)
}

var (
	errSectionMissing = errors.New("managed section missing after apply")
	errSectionPresent = errors.New("managed section still present after clearing")
)
