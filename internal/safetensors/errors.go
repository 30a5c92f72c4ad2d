package safetensors

import "errors"

// HeaderErrorKind classifies a fatal header failure.
type HeaderErrorKind int

const (
	KindTooLarge HeaderErrorKind = iota + 1
	KindTruncated
	KindEncoding
	KindInvalidJSON
	KindNotAnObject
)

var (
	ErrHeaderTooLarge = errors.New("safetensors: header too large")
	ErrTruncated      = errors.New("safetensors: header truncated")
	ErrEncoding       = errors.New("safetensors: header is not valid UTF-8")
	ErrInvalidJSON    = errors.New("safetensors: header is not valid JSON")
	ErrNotAnObject    = errors.New("safetensors: header is not a JSON object")
)

func (k HeaderErrorKind) String() string {
	switch k {
	case KindTooLarge:
		return "too_large"
	case KindTruncated:
		return "truncated"
	case KindEncoding:
		return "encoding"
	case KindInvalidJSON:
		return "invalid_json"
	case KindNotAnObject:
		return "not_an_object"
	default:
		return "unknown"
	}
}

func (k HeaderErrorKind) sentinel() error {
	switch k {
	case KindTooLarge:
		return ErrHeaderTooLarge
	case KindTruncated:
		return ErrTruncated
	case KindEncoding:
		return ErrEncoding
	case KindInvalidJSON:
		return ErrInvalidJSON
	case KindNotAnObject:
		return ErrNotAnObject
	default:
		return nil
	}
}

// HeaderError is a structural failure of the header. It is fatal to the parse;
// errors.Is matches it against the Err* sentinel for its Kind.
type HeaderError struct {
	Kind HeaderErrorKind
	Msg  string
	Err  error
}

func (e *HeaderError) Error() string {
	if e.Err != nil {
		return "safetensors: " + e.Msg + ": " + e.Err.Error()
	}
	return "safetensors: " + e.Msg
}

func (e *HeaderError) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func headerError(kind HeaderErrorKind, msg string, err error) *HeaderError {
	return &HeaderError{Kind: kind, Msg: msg, Err: err}
}
