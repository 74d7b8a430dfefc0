// Package elevation reports the privilege level of the current process.
package elevation

import "os"

// Checker reports whether the process runs with elevated privileges.
type Checker interface {
	// IsElevated reports whether the effective user is root.
	IsElevated() bool
}

type euidChecker struct{}

// NewChecker returns a Checker backed by the process's effective UID.
func NewChecker() Checker {
	return euidChecker{}
}

func (euidChecker) IsElevated() bool {
	return os.Geteuid() == 0
}

// Static is a fixed-answer Checker for testing.
type Static bool

// IsElevated reports the fixed answer.
func (s Static) IsElevated() bool {
	return bool(s)
}
