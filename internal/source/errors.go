package source

import "fmt"

// MissingSourceError reports a data directory or collection file that does
// not exist.
type MissingSourceError struct {
	Collection string
	Path       string
}

func (e *MissingSourceError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("data directory %s does not exist", e.Path)
	}
	return fmt.Sprintf("collection %q: %s does not exist", e.Collection, e.Path)
}

// MalformedSourceError reports a file whose content cannot be decoded as the
// expected collection document.
type MalformedSourceError struct {
	Collection string
	Path       string
	Err        error
}

func (e *MalformedSourceError) Error() string {
	return fmt.Sprintf("collection %q: malformed %s: %v", e.Collection, e.Path, e.Err)
}

func (e *MalformedSourceError) Unwrap() error {
	return e.Err
}
