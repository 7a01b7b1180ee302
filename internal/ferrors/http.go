package ferrors

import "fmt"

// HTTPError is the §4.1 HTTP client error: it always identifies the
// method and URL that failed so logs can name the target resource without
// re-parsing the message string.
type HTTPError struct {
	Base   Error  `json:"error"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

// NewHTTPError wraps a transport or status-level failure.
func NewHTTPError(method, url string, cause error) *HTTPError {
	return &HTTPError{
		Base: Error{
			Category: CategoryNetwork,
			Code:     CodeHTTP,
			Message:  fmt.Sprintf("%s %s failed", method, url),
			Cause:    cause,
		},
		Method: method,
		URL:    url,
	}
}

func (e *HTTPError) Error() string { return e.Base.Error() }
func (e *HTTPError) Unwrap() error { return e.Base.Cause }

func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	if !ok {
		return false
	}
	return e.Method == t.Method && e.URL == t.URL
}

// IOError wraps a local filesystem failure, optionally naming the path.
type IOError struct {
	Base Error  `json:"error"`
	Path string `json:"path,omitempty"`
}

// NewIOError wraps a filesystem failure.
func NewIOError(path string, cause error) *IOError {
	return &IOError{
		Base: Error{
			Category: CategoryIO,
			Code:     CodeIO,
			Message:  "filesystem operation failed",
			Cause:    cause,
		},
		Path: path,
	}
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return e.Path + ": " + e.Base.Error()
	}
	return e.Base.Error()
}

func (e *IOError) Unwrap() error { return e.Base.Cause }
