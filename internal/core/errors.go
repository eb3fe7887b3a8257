package core

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindUnknown        ErrorKind = ""
	KindAuth           ErrorKind = "auth"
	KindNoCredentials  ErrorKind = "no_credentials"
	KindMalformed      ErrorKind = "malformed"
	KindServer         ErrorKind = "server"
	KindTimeout        ErrorKind = "timeout"
	KindNetwork        ErrorKind = "network"
	KindToolMissing    ErrorKind = "tool_missing"
	KindUpdateRequired ErrorKind = "update_required"
	KindDataNotReady   ErrorKind = "data_not_ready"
)

// Kind sentinels for errors.Is. A *FetchError matches any sentinel of the same kind.
var (
	ErrUnauthorized   = &FetchError{Kind: KindAuth}
	ErrNoCredentials  = &FetchError{Kind: KindNoCredentials}
	ErrMalformed      = &FetchError{Kind: KindMalformed}
	ErrServer         = &FetchError{Kind: KindServer}
	ErrTimeout        = &FetchError{Kind: KindTimeout}
	ErrNetwork        = &FetchError{Kind: KindNetwork}
	ErrToolMissing    = &FetchError{Kind: KindToolMissing}
	ErrUpdateRequired = &FetchError{Kind: KindUpdateRequired}
	ErrDataNotReady   = &FetchError{Kind: KindDataNotReady}
)

// FetchError is the typed failure of one acquisition attempt.
type FetchError struct {
	Kind       ErrorKind
	Provider   string
	Source     Source
	StatusCode int
	Body       string
	Hint       string
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		if e.Source != "" {
			b.WriteString(" (" + string(e.Source) + ")")
		}
		b.WriteString(": ")
	}
	switch {
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.StatusCode != 0:
		fmt.Fprintf(&b, "HTTP %d", e.StatusCode)
	default:
		b.WriteString(string(e.Kind))
	}
	if e.StatusCode != 0 && e.Body != "" {
		b.WriteString(": " + e.Body)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil && t.Provider == "" && t.StatusCode == 0
}

// Errorf builds a FetchError of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *FetchError {
	return &FetchError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WrapError tags err with a kind, keeping it reachable through errors.Is/As.
func WrapError(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

func ServerError(status int, body string) *FetchError {
	return &FetchError{Kind: KindServer, StatusCode: status, Body: body}
}

func AuthError(status int, hint string) *FetchError {
	return &FetchError{
		Kind:       KindAuth,
		StatusCode: status,
		Hint:       hint,
		Err:        fmt.Errorf("unauthorized (HTTP %d)", status),
	}
}

// Attribute stamps provider and source onto err when it is a FetchError that
// does not carry them yet. Other errors are wrapped as KindUnknown.
func Attribute(err error, provider string, source Source) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return &FetchError{Provider: provider, Source: source, Err: err}
	}
	if fe.Provider != "" {
		return err
	}
	cp := *fe
	cp.Provider = provider
	if cp.Source == "" {
		cp.Source = source
	}
	return &cp
}

// KindOf returns the kind of the outermost FetchError in err's chain.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// UserMessage renders the most specific human-readable cause of err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		return err.Error()
	}

	subject := "usage"
	if fe.Provider != "" {
		subject = fe.Provider
	}
	var msg string
	switch fe.Kind {
	case KindAuth:
		msg = fmt.Sprintf("%s: session expired or unauthorized", subject)
		if fe.Source != "" {
			msg = fmt.Sprintf("%s: %s credentials were rejected", subject, fe.Source)
		}
	case KindNoCredentials:
		msg = fmt.Sprintf("%s: no credentials found", subject)
	case KindMalformed:
		msg = fmt.Sprintf("%s: unexpected response", subject)
	case KindServer:
		msg = fmt.Sprintf("%s: server error", subject)
		if fe.StatusCode != 0 {
			msg += fmt.Sprintf(" (HTTP %d)", fe.StatusCode)
		}
	case KindTimeout:
		msg = fmt.Sprintf("%s: timed out", subject)
	case KindNetwork:
		msg = fmt.Sprintf("%s: network error", subject)
	case KindToolMissing:
		msg = fmt.Sprintf("%s: CLI not installed", subject)
	case KindUpdateRequired:
		msg = fmt.Sprintf("%s: CLI update required", subject)
	case KindDataNotReady:
		msg = fmt.Sprintf("%s: usage data not available yet", subject)
	default:
		return fe.Error()
	}
	if fe.Err != nil && (fe.Kind != KindServer || fe.StatusCode == 0) {
		msg += " (" + fe.Err.Error() + ")"
	}
	if fe.Hint != "" {
		msg += ": " + fe.Hint
	}
	return msg
}
