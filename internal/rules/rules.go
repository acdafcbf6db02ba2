// Package rules persists accepted corrections as autocorrect rules inside a
// JSON settings document. The document may hold unrelated settings; only the
// configured rule list is rewritten and every sibling entry is preserved.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Wildcard is the language scope matching every language.
const Wildcard = "*"

// Rule maps misspelled words to their replacements for a set of language
// scopes.
type Rule struct {
	Languages []string          `json:"languages"`
	Words     map[string]string `json:"words"`
}

// Matches reports whether the rule applies to the given language scope.
func (r Rule) Matches(language string) bool {
	for _, l := range r.Languages {
		if l == Wildcard || l == language {
			return true
		}
	}
	return false
}

// Store reads and writes the rule list of one settings document. All
// methods are safe for concurrent use; writes serialize on the store.
type Store struct {
	mu   sync.Mutex
	path string
	key  string
}

// NewStore creates a store over the settings document at path. key names
// the settings entry holding the rule list.
func NewStore(path, key string) *Store {
	return &Store{path: path, key: key}
}

// Path returns the settings document location.
func (s *Store) Path() string {
	return s.path
}

// Rules returns the current rule list. A missing document or absent entry
// yields an empty list.
func (s *Store) Rules() ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}
	return decodeRules(doc, s.key)
}

// Lookup returns the stored replacement for a word in the given language
// scope, scanning rules in order.
func (s *Store) Lookup(language, word string) (string, bool, error) {
	rules, err := s.Rules()
	if err != nil {
		return "", false, err
	}

	for _, rule := range rules {
		if !rule.Matches(language) {
			continue
		}
		if replacement, ok := rule.Words[word]; ok {
			return replacement, true, nil
		}
	}
	return "", false, nil
}

// EnsureRule records that misspelled should be replaced by corrected in the
// wildcard language scope. The first wildcard rule in the list receives the
// word; if none exists a new wildcard rule is appended. Rules for other
// scopes and unrelated settings in the document are left untouched.
func (s *Store) EnsureRule(misspelled, corrected string) error {
	if misspelled == "" || corrected == "" {
		return fmt.Errorf("empty word in rule %q -> %q", misspelled, corrected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	rules, err := decodeRules(doc, s.key)
	if err != nil {
		return err
	}

	placed := false
	for i := range rules {
		if !isWildcard(rules[i]) {
			continue
		}
		if rules[i].Words == nil {
			rules[i].Words = make(map[string]string)
		}
		rules[i].Words[misspelled] = corrected
		placed = true
		break
	}
	if !placed {
		rules = append(rules, Rule{
			Languages: []string{Wildcard},
			Words:     map[string]string{misspelled: corrected},
		})
	}

	encoded, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}

	updated, err := sjson.SetRawBytesOptions(doc, escapeKey(s.key), encoded, &sjson.Options{Optimistic: true})
	if err != nil {
		return fmt.Errorf("update %s in %s: %w", s.key, s.path, err)
	}

	return s.writeDocument(updated)
}

// readDocument loads the settings document. A missing file is an empty
// object.
func (s *Store) readDocument() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("read settings %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("settings %s: invalid JSON", s.path)
	}
	return data, nil
}

func (s *Store) writeDocument(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", s.path, err)
	}
	return nil
}

// decodeRules extracts the rule list from a settings document.
func decodeRules(doc []byte, key string) ([]Rule, error) {
	result := gjson.GetBytes(doc, escapeKey(key))
	if !result.Exists() {
		return nil, nil
	}
	if !result.IsArray() {
		return nil, fmt.Errorf("settings entry %s is not an array", key)
	}

	var rules []Rule
	if err := json.Unmarshal([]byte(result.Raw), &rules); err != nil {
		return nil, fmt.Errorf("decode rules at %s: %w", key, err)
	}
	return rules, nil
}

// isWildcard reports whether the rule's scopes include every language.
func isWildcard(r Rule) bool {
	for _, l := range r.Languages {
		if l == Wildcard {
			return true
		}
	}
	return false
}

// escapeKey makes a literal settings key usable as a gjson/sjson path.
func escapeKey(key string) string {
	return strings.ReplaceAll(key, ".", `\.`)
}
