package scanning

import "errors"

var (
	// ErrMissingConfiguration is returned by constructors when a required credential is absent
	ErrMissingConfiguration = errors.New("analysis service is not configured")
	// ErrTransport means the analysis service could not be reached
	ErrTransport = errors.New("analysis service unreachable")
	// ErrUnexpectedResponse means the service answered with a non-2xx status or without content
	ErrUnexpectedResponse = errors.New("unexpected response from analysis service")
	// ErrDecodingFailed means the service answered but the content could not be decoded
	ErrDecodingFailed = errors.New("decoding analysis response failed")
)
