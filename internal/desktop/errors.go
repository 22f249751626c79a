package desktop

import (
	"fmt"
	"strings"
)

const (
	// CodeUnavailable: the desktop application could not be reached or
	// answered with a non-success status and no usable error body.
	CodeUnavailable = "DESKTOP_UNAVAILABLE"
	// CodeRejected: the application answered but reported a domain failure.
	CodeRejected   = "DESKTOP_REJECTED"
	CodeValidation = "VALIDATION"
)

// Kind is a coarse classification of a rejection message, used to tailor
// guidance.
type Kind string

const (
	KindOther       Kind = "other"
	KindDisabled    Kind = "disabled"
	KindForbidden   Kind = "forbidden"
	KindAuth        Kind = "auth"
	KindUnsupported Kind = "unsupported"
	KindGone        Kind = "gone"
	KindTimeout     Kind = "timeout"
)

// CodedError is a typed error used for stable mapping to user-facing text.
type CodedError struct {
	Code        string
	Message     string
	Kind        Kind
	Status      int
	Platform    string
	Suggestions []string
	Cause       error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) *CodedError {
	return &CodedError{Code: code, Message: msg, Kind: Classify(msg), Cause: cause}
}

// Classify maps a failure message to a Kind by substring.
func Classify(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "disabled"):
		return KindDisabled
	case strings.Contains(m, "403"), strings.Contains(m, "forbidden"), strings.Contains(m, "access denied"):
		return KindForbidden
	case strings.Contains(m, "private"), strings.Contains(m, "login"), strings.Contains(m, "logged in"), strings.Contains(m, "sign in"):
		return KindAuth
	case strings.Contains(m, "unsupported"), strings.Contains(m, "not supported"):
		return KindUnsupported
	case strings.Contains(m, "not available"), strings.Contains(m, "removed"):
		return KindGone
	case strings.Contains(m, "timeout"), strings.Contains(m, "timed out"):
		return KindTimeout
	}
	return KindOther
}

// Guidance returns one line of advice for a kind.
func Guidance(k Kind) string {
	switch k {
	case KindDisabled:
		return "This feature is disabled in the desktop application settings."
	case KindForbidden:
		return "Access was denied. Log in to the site in the browser and try again."
	case KindAuth:
		return "This content is private. Make sure the browser is logged in to the right account."
	case KindUnsupported:
		return "This URL is not supported. Try the page URL instead of a media URL."
	case KindGone:
		return "The content is unavailable in your region or has been removed."
	case KindTimeout:
		return "The request timed out. Try again in a moment."
	}
	return ""
}
