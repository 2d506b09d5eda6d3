// Package gate is the shared access code prompt in front of mutating commands.
// It keeps casual edits out and is not an access control mechanism.
package gate

import (
	"errors"
	"strings"
)

var ErrDenied = errors.New("access code rejected")

// Check compares input to code ignoring surrounding space and case.
func Check(input, code string) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	if strings.EqualFold(strings.TrimSpace(input), strings.TrimSpace(code)) {
		return nil
	}
	return ErrDenied
}
