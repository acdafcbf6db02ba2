package autocorrect

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"spellfix/internal/app"
	"spellfix/internal/document"
	"spellfix/internal/protocol"
	"spellfix/internal/suggest"
)

// CommandName is the command bound to every correction action.
const CommandName = "spellfix.applyAndSave"

// CommandArgs is the argument payload of an apply-and-save invocation.
type CommandArgs struct {
	URI        protocol.DocumentURI `json:"uri"`
	Range      protocol.Range       `json:"range"`
	Misspelled string               `json:"misspelled"`
	Corrected  string               `json:"corrected"`
}

// SuggestionFilter reorders or prunes candidate corrections for one word.
type SuggestionFilter interface {
	Apply(word string, suggestions []string) []string
}

// Suggester produces candidate corrections for a misspelled word.
type Suggester interface {
	Suggest(ctx context.Context, misspelled string) ([]string, error)
}

// Provider turns spell-checker diagnostics into quick-fix actions.
type Provider struct {
	source   string
	docs     *document.Store
	guard    *Guard
	registry *Registry
	filter   SuggestionFilter
	fallback Suggester
	logger   *app.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithFilter installs a suggestion filter run over every candidate list.
func WithFilter(f SuggestionFilter) ProviderOption {
	return func(p *Provider) { p.filter = f }
}

// WithFallback installs a suggestion source consulted when neither the
// diagnostic payload nor the nested resolution yields candidates.
func WithFallback(s Suggester) ProviderOption {
	return func(p *Provider) { p.fallback = s }
}

// NewProvider creates a provider reacting to diagnostics from the given
// source tag.
func NewProvider(source string, docs *document.Store, registry *Registry, logger *app.Logger, opts ...ProviderOption) *Provider {
	if logger == nil {
		logger = app.NullLogger
	}

	p := &Provider{
		source:   source,
		docs:     docs,
		guard:    &Guard{},
		registry: registry,
		logger:   logger.WithComponent("provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Guard exposes the provider's re-entrancy flag.
func (p *Provider) Guard() *Guard {
	return p.guard
}

// CodeActions builds one quick fix per diagnostic per candidate correction.
// Action order follows diagnostic order, then suggestion order, so the same
// input always yields the same actions.
func (p *Provider) CodeActions(ctx context.Context, params protocol.CodeActionParams) ([]protocol.CodeAction, error) {
	if ctx.Err() != nil {
		return nil, nil
	}
	if p.guard.Held() {
		return nil, nil
	}

	var relevant []protocol.Diagnostic
	for _, diag := range params.Context.Diagnostics {
		if diag.Source == p.source {
			relevant = append(relevant, diag)
		}
	}
	if len(relevant) == 0 {
		return nil, nil
	}

	doc, err := p.docs.Get(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	opID := uuid.NewString()
	log := p.logger.WithField("op", opID)

	var actions []protocol.CodeAction
	for _, diag := range relevant {
		misspelled, err := doc.TextInRange(diag.Range)
		if err != nil {
			log.Warn("cannot read diagnostic range in %s: %v", params.TextDocument.URI, err)
			continue
		}
		if misspelled == "" {
			continue
		}

		suggestions := p.resolve(ctx, params.TextDocument.URI, diag, misspelled, log)
		if p.filter != nil {
			suggestions = p.filter.Apply(misspelled, suggestions)
		}

		for _, corrected := range suggestions {
			if corrected == "" {
				continue
			}
			actions = append(actions, p.buildAction(params.TextDocument.URI, diag, misspelled, corrected))
		}
	}

	if len(actions) > 0 {
		log.Debug("offering %d corrections for %s", len(actions), params.TextDocument.URI)
	}
	return actions, nil
}

// resolve produces candidate corrections for one diagnostic: the embedded
// payload when present, otherwise the titles of other registered action
// sources, otherwise the fallback suggester.
func (p *Provider) resolve(ctx context.Context, uri protocol.DocumentURI, diag protocol.Diagnostic, misspelled string, log *app.Logger) []string {
	payload := suggest.DecodePayload(diag.Data)
	if payload.Kind == suggest.PayloadExplicit {
		return payload.Suggestions
	}

	words := p.resolveNested(ctx, uri, diag)

	if len(words) == 0 && p.fallback != nil {
		fetched, err := p.fallback.Suggest(ctx, misspelled)
		if err != nil {
			log.Warn("fallback suggester failed for %q: %v", misspelled, err)
		} else {
			words = fetched
		}
	}

	return words
}

// resolveNested re-queries the registry at the diagnostic's location and
// keeps the action titles that look like correction words. The guard is
// held for the duration so the inner query sees this provider answer empty.
func (p *Provider) resolveNested(ctx context.Context, uri protocol.DocumentURI, diag protocol.Diagnostic) []string {
	if !p.guard.TryAcquire() {
		return nil
	}
	defer p.guard.Release()

	actions := p.registry.Resolve(ctx, protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Range:        diag.Range,
		Context: protocol.CodeActionContext{
			Diagnostics: []protocol.Diagnostic{diag},
			Only:        []protocol.CodeActionKind{protocol.CodeActionKindQuickFix},
		},
	})

	titles := make([]string, 0, len(actions))
	for _, action := range actions {
		titles = append(titles, action.Title)
	}
	return suggest.FilterTitles(titles)
}

// buildAction wires one correction into a quick-fix action bound to the
// apply-and-save command.
func (p *Provider) buildAction(uri protocol.DocumentURI, diag protocol.Diagnostic, misspelled, corrected string) protocol.CodeAction {
	title := fmt.Sprintf("Fix: %q → %q + Auto Correct", misspelled, corrected)

	return protocol.CodeAction{
		Title:       title,
		Kind:        protocol.CodeActionKindQuickFix,
		Diagnostics: []protocol.Diagnostic{diag},
		IsPreferred: true,
		Command: &protocol.Command{
			Title:   title,
			Command: CommandName,
			Arguments: []any{CommandArgs{
				URI:        uri,
				Range:      diag.Range,
				Misspelled: misspelled,
				Corrected:  corrected,
			}},
		},
	}
}
