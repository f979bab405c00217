package main

import "fmt"

// UsageError is a bad flag combination or an unknown name, detected
// before any device I/O.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// VerifyError reports a partition whose content differs from its file.
type VerifyError struct {
	Partition  string
	Mismatches int
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification of %s failed: there were %d errors", e.Partition, e.Mismatches)
}
