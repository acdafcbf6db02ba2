package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spellfix/internal/app"
)

// LLMSource asks an Ollama-compatible completion endpoint for a single
// corrected spelling. It is a last-resort suggestion source used when the
// spell checker provides no replacement.
type LLMSource struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *app.Logger
}

// NewLLMSource creates a source against the given Ollama base URL.
func NewLLMSource(baseURL, model string, timeout time.Duration, logger *app.Logger) *LLMSource {
	if logger == nil {
		logger = app.NullLogger
	}
	return &LLMSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.WithComponent("llm"),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Suggest returns up to one corrected spelling for the misspelled word, or
// an empty slice when the model declines or answers with something that is
// not a plain word.
func (s *LLMSource) Suggest(ctx context.Context, misspelled string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Correct the spelling of the single word %q. Reply with only the corrected word, nothing else.",
		misspelled,
	)

	body, err := json.Marshal(generateRequest{
		Model:  s.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate request failed with status %d: %s", resp.StatusCode, data)
	}

	var genResp generateResponse
	if err := json.Unmarshal(data, &genResp); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}

	word := cleanWord(genResp.Response)
	if word == "" || strings.EqualFold(word, misspelled) {
		s.logger.Debug("model offered no usable correction for %q", misspelled)
		return nil, nil
	}
	if kind, _ := ClassifyTitle(word); kind != TitleSuggestion {
		s.logger.Debug("model answer %q is not a plain word", word)
		return nil, nil
	}

	s.logger.Debug("model suggests %q for %q", word, misspelled)
	return []string{word}, nil
}

// cleanWord strips quoting and punctuation the model tends to wrap answers
// in. Multi-word answers are unusable and yield the empty string.
func cleanWord(response string) string {
	word := strings.TrimSpace(response)
	word = strings.Trim(word, "\"'`.,:")
	if strings.ContainsAny(word, " \t\n") {
		return ""
	}
	return word
}
