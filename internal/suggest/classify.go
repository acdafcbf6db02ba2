package suggest

import (
	"regexp"
	"strings"
)

// TitleKind classifies a quick-fix action title.
type TitleKind int

const (
	// TitleSuggestion is a bare correction word offered by the checker.
	TitleSuggestion TitleKind = iota
	// TitleSelfProduced is one of our own correction actions.
	TitleSelfProduced
	// TitleDictionaryAdd adds the word to a dictionary instead of fixing it.
	TitleDictionaryAdd
	// TitleUnrecognized is any other action.
	TitleUnrecognized
)

func (k TitleKind) String() string {
	switch k {
	case TitleSuggestion:
		return "suggestion"
	case TitleSelfProduced:
		return "self-produced"
	case TitleDictionaryAdd:
		return "dictionary-add"
	default:
		return "unrecognized"
	}
}

// wordPattern matches a single plain word: Latin letters with optional
// apostrophes or hyphens after the first letter.
var wordPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z'-]*$`)

// ClassifyTitle determines what a quick-fix action title represents. For
// TitleSuggestion the returned word is the title itself; for every other
// kind the word is empty.
func ClassifyTitle(title string) (TitleKind, string) {
	if strings.Contains(title, "Auto Correct") {
		return TitleSelfProduced, ""
	}
	if strings.HasPrefix(title, "Add:") {
		return TitleDictionaryAdd, ""
	}
	if wordPattern.MatchString(title) {
		return TitleSuggestion, title
	}
	return TitleUnrecognized, ""
}

// FilterTitles reduces a list of action titles to the plausible correction
// words among them, preserving order.
func FilterTitles(titles []string) []string {
	var words []string
	for _, title := range titles {
		if kind, word := ClassifyTitle(title); kind == TitleSuggestion {
			words = append(words, word)
		}
	}
	return words
}
