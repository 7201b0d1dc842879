package synthflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
)

// ErrorKind is the closed set of remote failure classes the relay reacts to.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindEnded
	KindConfigConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindEnded:
		return "ended"
	case KindConfigConflict:
		return "config_conflict"
	default:
		return "other"
	}
}

// Phrases are stored case-folded.
var (
	notFoundPhrases = []string{"not found", "does not exist"}
	endedPhrase     = "chat has ended"
	conflictPhrase  = "already exists with different configuration"
)

// descriptionFields lists where an error body may carry its human-readable
// description, in lookup order.
var descriptionFields = []string{"description", "detail", "message", "error"}

// RemoteError is returned for every failed backend call, transport failures
// included.
type RemoteError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthflow: %s request to %s failed: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("synthflow: %s: unexpected status %d from %s: %s", e.Kind, e.StatusCode, e.URL, e.Body)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) HTTPStatusCode() int {
	return e.StatusCode
}

// KindOf reports the classification carried by err. Errors that did not come
// from a backend response are KindOther.
func KindOf(err error) ErrorKind {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return KindOther
}

// Classify maps an error response to an ErrorKind. All knowledge of the
// backend's error wording lives here.
func Classify(status int, body []byte) ErrorKind {
	desc := cases.Fold().String(describe(body))
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest && strings.Contains(desc, endedPhrase):
		return KindEnded
	case status == http.StatusBadRequest && strings.Contains(desc, conflictPhrase):
		return KindConfigConflict
	case containsAny(desc, notFoundPhrases):
		return KindNotFound
	default:
		return KindOther
	}
}

// describe pulls the description out of a JSON error body, falling back to the
// raw text.
func describe(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}
	if s := lookupDescription(payload, 2); s != "" {
		return s
	}
	return string(body)
}

func lookupDescription(payload map[string]any, depth int) string {
	for _, field := range descriptionFields {
		switch v := payload[field].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if depth > 1 {
				if s := lookupDescription(v, depth-1); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
