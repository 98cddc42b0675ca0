package models

import "fmt"

// FetchError is a failed quote or news fetch for one ticker
type FetchError struct {
	Ticker string
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Op, e.Ticker, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError rejects a command before any state is touched
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransportError is a failed message delivery
type TransportError struct {
	ChatID     int64
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send to chat %d: status %d: %v", e.ChatID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("send to chat %d: %v", e.ChatID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed on another attempt.
// Client errors other than rate limiting are permanent.
func (e *TransportError) Retryable() bool {
	if e.StatusCode == 0 || e.StatusCode == 429 {
		return true
	}
	return e.StatusCode >= 500
}

// StorageError is a persistence failure
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
