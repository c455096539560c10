// Package crawling discovers related article links on a fetched page.
package crawling

import "fmt"

// PageError reports a page whose links could not be read.
type PageError struct {
	Page   string
	Reason string
	Err    error
}

func (e *PageError) Error() string {
	msg := fmt.Sprintf("cannot read links of %q: %s", e.Page, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PageError) Unwrap() error {
	return e.Err
}
