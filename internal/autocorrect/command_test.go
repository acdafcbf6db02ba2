package autocorrect

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"spellfix/internal/document"
	"spellfix/internal/protocol"
	"spellfix/internal/rules"
)

// fakeHost records client-bound requests and can simulate the client
// applying edits to the document store.
type fakeHost struct {
	docs *document.Store

	showErr     error
	showFail    bool
	applyErr    error
	applyReject string

	shown    []protocol.ShowDocumentParams
	edits    []protocol.ApplyWorkspaceEditParams
	messages []protocol.ShowMessageParams
}

func (f *fakeHost) ShowDocument(ctx context.Context, params protocol.ShowDocumentParams) (protocol.ShowDocumentResult, error) {
	f.shown = append(f.shown, params)
	if f.showErr != nil {
		return protocol.ShowDocumentResult{}, f.showErr
	}
	return protocol.ShowDocumentResult{Success: !f.showFail}, nil
}

func (f *fakeHost) ApplyEdit(ctx context.Context, params protocol.ApplyWorkspaceEditParams) (protocol.ApplyWorkspaceEditResponse, error) {
	f.edits = append(f.edits, params)
	if f.applyErr != nil {
		return protocol.ApplyWorkspaceEditResponse{}, f.applyErr
	}
	if f.applyReject != "" {
		return protocol.ApplyWorkspaceEditResponse{Applied: false, FailureReason: f.applyReject}, nil
	}

	// Mirror the edit into the document store the way a client's
	// didChange would.
	for uri, edits := range params.Edit.Changes {
		doc, err := f.docs.Get(uri)
		if err != nil {
			continue
		}
		text := doc.Text
		for _, edit := range edits {
			before, rangeErr := doc.TextInRange(edit.Range)
			if rangeErr != nil {
				continue
			}
			text = strings.Replace(text, before, edit.NewText, 1)
		}
		_ = f.docs.Change(protocol.DidChangeTextDocumentParams{
			TextDocument: protocol.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
				Version:                doc.Version + 1,
			},
			ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
		})
	}
	return protocol.ApplyWorkspaceEditResponse{Applied: true}, nil
}

func (f *fakeHost) ShowMessage(ctx context.Context, typ protocol.MessageType, message string) error {
	f.messages = append(f.messages, protocol.ShowMessageParams{Type: typ, Message: message})
	return nil
}

func newCommandFixture(t *testing.T, text string) (*Command, *fakeHost, *rules.Store) {
	t.Helper()

	docs := newTestDocs(t, text)
	host := &fakeHost{docs: docs}
	store := rules.NewStore(filepath.Join(t.TempDir(), "settings.json"), "autocorrect.rules")
	return NewCommand(host, docs, store, nil), host, store
}

func testArgs() CommandArgs {
	return CommandArgs{
		URI: "file:///notes.md",
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 7},
			End:   protocol.Position{Line: 0, Character: 14},
		},
		Misspelled: "recieve",
		Corrected:  "receive",
	}
}

func TestCommand_AppliesEditAndSavesRule(t *testing.T) {
	cmd, host, store := newCommandFixture(t, "I will recieve it.")

	if err := cmd.Execute(context.Background(), testArgs()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(host.shown) != 1 {
		t.Fatalf("ShowDocument calls = %d, want 1", len(host.shown))
	}
	if !host.shown[0].TakeFocus {
		t.Error("document not focused")
	}

	if len(host.edits) != 1 {
		t.Fatalf("ApplyEdit calls = %d, want 1", len(host.edits))
	}
	edits := host.edits[0].Edit.Changes["file:///notes.md"]
	if len(edits) != 1 || edits[0].NewText != "receive" {
		t.Errorf("edits = %+v", edits)
	}

	doc, _ := host.docs.Get("file:///notes.md")
	if doc.Text != "I will receive it." {
		t.Errorf("document text = %q", doc.Text)
	}

	replacement, ok, err := store.Lookup("markdown", "recieve")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok || replacement != "receive" {
		t.Errorf("rule = %q, %v; want receive, true", replacement, ok)
	}

	if len(host.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(host.messages))
	}
	if host.messages[0].Type != protocol.MessageTypeInfo {
		t.Errorf("message type = %v", host.messages[0].Type)
	}
	if !strings.Contains(host.messages[0].Message, `"recieve"`) {
		t.Errorf("message = %q", host.messages[0].Message)
	}
}

func TestCommand_StaleSpanFails(t *testing.T) {
	cmd, host, store := newCommandFixture(t, "I will already fixed it.")

	err := cmd.Execute(context.Background(), testArgs())
	if err == nil {
		t.Fatal("expected error for stale span")
	}
	if len(host.edits) != 0 {
		t.Error("edit attempted despite stale span")
	}
	if replacements, _ := store.Rules(); len(replacements) != 0 {
		t.Error("rule written despite stale span")
	}
}

func TestCommand_ShowDocumentFailure(t *testing.T) {
	cmd, host, _ := newCommandFixture(t, "I will recieve it.")
	host.showFail = true

	if err := cmd.Execute(context.Background(), testArgs()); err == nil {
		t.Fatal("expected error when client cannot open document")
	}
	if len(host.edits) != 0 {
		t.Error("edit attempted after failed open")
	}
}

func TestCommand_EditRejected(t *testing.T) {
	cmd, host, store := newCommandFixture(t, "I will recieve it.")
	host.applyReject = "document was modified"

	err := cmd.Execute(context.Background(), testArgs())
	if err == nil {
		t.Fatal("expected error when client rejects edit")
	}
	if !strings.Contains(err.Error(), "document was modified") {
		t.Errorf("err = %v", err)
	}
	if replacements, _ := store.Rules(); len(replacements) != 0 {
		t.Error("rule written despite rejected edit")
	}
}

func TestCommand_EditRequestError(t *testing.T) {
	cmd, host, _ := newCommandFixture(t, "I will recieve it.")
	host.applyErr = fmt.Errorf("connection lost")

	if err := cmd.Execute(context.Background(), testArgs()); err == nil {
		t.Fatal("expected error when applyEdit request fails")
	}
}

func TestCommand_UnknownDocument(t *testing.T) {
	cmd, _, _ := newCommandFixture(t, "I will recieve it.")

	args := testArgs()
	args.URI = "file:///other.md"

	if err := cmd.Execute(context.Background(), args); err == nil {
		t.Fatal("expected error for unopened document")
	}
}

func TestCommand_RejectsEmptyWords(t *testing.T) {
	cmd, _, _ := newCommandFixture(t, "I will recieve it.")

	args := testArgs()
	args.Corrected = ""

	if err := cmd.Execute(context.Background(), args); err == nil {
		t.Fatal("expected error for empty correction")
	}
}

// End to end: a cSpell diagnostic over "recieve" with one embedded
// suggestion yields one action, and invoking its command fixes the text
// and records the rule.
func TestCorrectionFlow(t *testing.T) {
	docs := document.NewStore()
	docs.Open(protocol.TextDocumentItem{
		URI:        "file:///notes.md",
		LanguageID: "markdown",
		Version:    1,
		Text:       "I will recieve it.",
	})

	provider := NewProvider(testSource, docs, NewRegistry(nil), nil)
	host := &fakeHost{docs: docs}
	store := rules.NewStore(filepath.Join(t.TempDir(), "settings.json"), "autocorrect.rules")
	cmd := NewCommand(host, docs, store, nil)

	diag := spellDiag(7, 14, map[string]any{"suggestions": []any{"receive"}})
	actions, err := provider.CodeActions(context.Background(), actionParams(diag))
	if err != nil {
		t.Fatalf("CodeActions: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	if actions[0].Title != `Fix: "recieve" → "receive" + Auto Correct` {
		t.Errorf("title = %q", actions[0].Title)
	}

	args := actions[0].Command.Arguments[0].(CommandArgs)
	if err := cmd.Execute(context.Background(), args); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	doc, _ := docs.Get("file:///notes.md")
	if doc.Text != "I will receive it." {
		t.Errorf("document text = %q", doc.Text)
	}

	ruleList, err := store.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(ruleList) != 1 || ruleList[0].Words["recieve"] != "receive" {
		t.Errorf("rules = %+v", ruleList)
	}
}
