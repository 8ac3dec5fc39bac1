package notification

import "fmt"

// ConfigurationError indicates missing or invalid provider credentials.
// It blocks every send on the affected channel until configuration succeeds
// and is the only handler error escalated at error severity.
type ConfigurationError struct {
	Channel Channel
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s channel not configured: %s", e.Channel, e.Reason)
}

// SuppressionError indicates the recipient is on the suppression list.
// Never retried; no provider call is made.
type SuppressionError struct {
	Email  string
	Reason string
	Type   string
}

func (e *SuppressionError) Error() string {
	return fmt.Sprintf("recipient suppressed (%s): %s", e.Type, e.Reason)
}

// ValidationError indicates a malformed email address or phone number.
// Local and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError is a non-2xx response or exception from a channel provider.
type ProviderError struct {
	Channel Channel
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error %s: %s", e.Channel, e.Code, e.Message)
}

// permanentCodes are provider codes that retrying cannot fix.
var permanentCodes = map[string]bool{
	"INVALID_NUMBER":    true,
	"NUMBER_UNROUTABLE": true,
	"MESSAGE_REJECTED":  true,
	"ACCOUNT_SUSPENDED": true,
}

// Permanent reports whether the error code marks a failure that should not
// be retried at the record level.
func (e *ProviderError) Permanent() bool { return permanentCodes[e.Code] }

// UnknownChannelError indicates an unroutable channel identifier. Scoped to
// a single (recipient, channel) pair.
type UnknownChannelError struct {
	Channel string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("unknown channel %q", e.Channel)
}

// PartialMultipartFailure indicates that part Part of TotalParts of a
// multipart SMS failed. Parts after it were abandoned; the SentParts already
// delivered are not rolled back.
type PartialMultipartFailure struct {
	Part       int
	TotalParts int
	SentParts  int
	Err        error
}

func (e *PartialMultipartFailure) Error() string {
	return fmt.Sprintf("sms part %d/%d failed after %d sent: %v",
		e.Part, e.TotalParts, e.SentParts, e.Err)
}

func (e *PartialMultipartFailure) Unwrap() error { return e.Err }

// ErrorCode extracts a stable error code from a handler error for audit
// logging. Unknown error types map to SEND_FAILED.
func ErrorCode(err error) string {
	switch e := err.(type) {
	case *ConfigurationError:
		return "NOT_CONFIGURED"
	case *SuppressionError:
		return "EMAIL_SUPPRESSED"
	case *ValidationError:
		return "VALIDATION_FAILED"
	case *ProviderError:
		return e.Code
	case *UnknownChannelError:
		return "UNKNOWN_CHANNEL"
	case *PartialMultipartFailure:
		return ErrorCode(e.Err)
	}
	return "SEND_FAILED"
}
