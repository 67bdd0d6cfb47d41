package scripthost

import (
	"regexp"
	"strings"

	"github.com/comalice/scxmlrt/internal/value"
)

var whitespaceRunRe = regexp.MustCompile(`\s+`)

// EventDataFromPayload implements the `_event.data` construction rules for
// a raw string payload (the body of an HTTP post, a <content> child, or
// similar): a payload beginning with `<` parses as XML and is exposed as a
// DOM value; failing that, a JSON payload parses into the structured
// value tree; anything else is carried as a whitespace-normalized string,
// per spec.md §4.B.4.
func (s *Session) EventDataFromPayload(raw string) (value.Value, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return value.Undef, nil
	}
	if strings.HasPrefix(trimmed, "<") {
		doc, err := ParseXML(trimmed)
		if err == nil {
			return value.FromExternal(wrapDocument(s.vm, doc)), nil
		}
		// Fall through to JSON/string handling: a payload that merely
		// starts with `<` but is not well-formed XML is not a platform
		// error, just not DOM-shaped.
	}
	if v, err := value.FromJSON([]byte(trimmed)); err == nil {
		return v, nil
	}
	return value.FromString(whitespaceRunRe.ReplaceAllString(trimmed, " ")), nil
}
