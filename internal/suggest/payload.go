// Package suggest turns spell-checker diagnostics into candidate
// corrections: it decodes suggestion payloads embedded in diagnostics,
// classifies quick-fix action titles, and optionally asks a language model
// for a replacement when the checker offers none.
package suggest

// PayloadKind tags whether a diagnostic carried usable suggestions.
type PayloadKind int

const (
	// PayloadNone means the diagnostic carried no suggestion list.
	PayloadNone PayloadKind = iota
	// PayloadExplicit means the diagnostic carried suggestion strings.
	PayloadExplicit
)

// Payload is the validated suggestion content of one diagnostic.
type Payload struct {
	Kind        PayloadKind
	Suggestions []string
}

// DecodePayload inspects a diagnostic's opaque data field for a list of
// suggested replacements. The data is either the list itself or an object
// with a "suggestions" field; list elements are plain strings or objects
// with a "word" field. Anything else yields PayloadNone. An explicitly
// present but empty list is still PayloadExplicit, so callers can
// distinguish "checker said nothing fits" from "checker said nothing".
func DecodePayload(data any) Payload {
	var list []any
	switch v := data.(type) {
	case []any:
		list = v
	case map[string]any:
		raw, ok := v["suggestions"]
		if !ok {
			return Payload{Kind: PayloadNone}
		}
		if list, ok = raw.([]any); !ok {
			return Payload{Kind: PayloadNone}
		}
	default:
		return Payload{Kind: PayloadNone}
	}

	suggestions := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			if v != "" {
				suggestions = append(suggestions, v)
			}
		case map[string]any:
			if word, ok := v["word"].(string); ok && word != "" {
				suggestions = append(suggestions, word)
			}
		}
	}

	return Payload{Kind: PayloadExplicit, Suggestions: suggestions}
}
