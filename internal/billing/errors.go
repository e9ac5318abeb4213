package billing

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NotFoundError reports that the donation product is missing from the catalog
type NotFoundError struct {
	SKU string
	Err error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("donation product %q not found: %v", e.SKU, e.Err)
	}
	return fmt.Sprintf("donation product %q not found", e.SKU)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ProviderError carries the failure payload surfaced by the billing provider
type ProviderError struct {
	Op      string
	Status  int
	Payload json.RawMessage
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("billing provider %s failed", e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if len(e.Payload) > 0 {
		msg += ": " + string(e.Payload)
	}
	return msg
}

// ErrorPayload returns the value sent back to content scripts for err:
// the provider's raw failure payload when there is one, the message otherwise.
func ErrorPayload(err error) any {
	var pe *ProviderError
	if errors.As(err, &pe) && len(pe.Payload) > 0 {
		return pe.Payload
	}
	return map[string]string{"message": err.Error()}
}
