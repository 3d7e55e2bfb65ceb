package source

import (
	"fmt"

	"newsdigest/internal/domain"
)

// FetchError reports that a source was unreachable or answered with an
// unexpected shape.
type FetchError struct {
	Kind domain.SourceKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
