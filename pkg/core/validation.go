package core

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName validates a channel or worker name.
// Names end up in stream, bucket and log file names, so only
// [A-Za-z0-9_-] is accepted.
func ValidateName(name string) error {
	if name == "" {
		return &Error{Code: CodeInvalidName, Message: "name cannot be empty"}
	}
	if len(name) > 255 {
		return &Error{Code: CodeInvalidName, Message: "name too long (max 255 characters)"}
	}
	if !namePattern.MatchString(name) {
		return &Error{Code: CodeInvalidName, Message: fmt.Sprintf("name %q may only contain letters, digits, '_' and '-'", name)}
	}
	return nil
}

// ValidateItem validates a channel item
func ValidateItem(item interface{}) error {
	if item == nil {
		return &Error{Code: CodeInvalidInput, Message: "item cannot be nil"}
	}
	return nil
}

// ValidateCount validates a worker instance count
func ValidateCount(count int) error {
	if count < 1 {
		return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf("count must be >= 1, got %d", count)}
	}
	return nil
}
