package autocorrect

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"spellfix/internal/app"
	"spellfix/internal/document"
	"spellfix/internal/protocol"
	"spellfix/internal/rules"
)

// HostClient is the slice of client-bound requests the command needs.
type HostClient interface {
	ShowDocument(ctx context.Context, params protocol.ShowDocumentParams) (protocol.ShowDocumentResult, error)
	ApplyEdit(ctx context.Context, params protocol.ApplyWorkspaceEditParams) (protocol.ApplyWorkspaceEditResponse, error)
	ShowMessage(ctx context.Context, typ protocol.MessageType, message string) error
}

// Command applies a correction to the document and persists it as an
// autocorrect rule.
type Command struct {
	client HostClient
	docs   *document.Store
	store  *rules.Store
	logger *app.Logger
}

// NewCommand creates the apply-and-save command handler.
func NewCommand(client HostClient, docs *document.Store, store *rules.Store, logger *app.Logger) *Command {
	if logger == nil {
		logger = app.NullLogger
	}
	return &Command{
		client: client,
		docs:   docs,
		store:  store,
		logger: logger.WithComponent("command"),
	}
}

// Execute runs one apply-and-save invocation: bring the document into view,
// replace the misspelled span, persist the rule, notify the user. The text
// edit and the rule write are not transactional; a rule-write failure after
// a successful edit leaves the document corrected but the rule unsaved.
func (c *Command) Execute(ctx context.Context, args CommandArgs) error {
	opID := uuid.NewString()
	log := c.logger.WithField("op", opID)
	log.Info("applying %q -> %q in %s", args.Misspelled, args.Corrected, args.URI)

	if args.Misspelled == "" || args.Corrected == "" {
		return fmt.Errorf("invalid correction %q -> %q", args.Misspelled, args.Corrected)
	}

	selection := args.Range
	shown, err := c.client.ShowDocument(ctx, protocol.ShowDocumentParams{
		URI:       args.URI,
		TakeFocus: true,
		Selection: &selection,
	})
	if err != nil {
		return fmt.Errorf("show document %s: %w", args.URI, err)
	}
	if !shown.Success {
		return fmt.Errorf("client could not open %s", args.URI)
	}

	if err := c.verifySpan(args); err != nil {
		return err
	}

	applied, err := c.client.ApplyEdit(ctx, protocol.ApplyWorkspaceEditParams{
		Label: fmt.Sprintf("Fix spelling of %q", args.Misspelled),
		Edit: protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentURI][]protocol.TextEdit{
				args.URI: {{Range: args.Range, NewText: args.Corrected}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("apply edit to %s: %w", args.URI, err)
	}
	if !applied.Applied {
		return fmt.Errorf("client rejected edit to %s: %s", args.URI, applied.FailureReason)
	}

	if err := c.store.EnsureRule(args.Misspelled, args.Corrected); err != nil {
		return fmt.Errorf("save autocorrect rule: %w", err)
	}

	message := fmt.Sprintf("Replaced %q with %q and saved autocorrect rule.", args.Misspelled, args.Corrected)
	if err := c.client.ShowMessage(ctx, protocol.MessageTypeInfo, message); err != nil {
		log.Warn("show message failed: %v", err)
	}

	log.Info("correction applied and rule saved")
	return nil
}

// verifySpan checks that the target span still holds the misspelled text.
// The document may have changed between offering the action and invoking
// it.
func (c *Command) verifySpan(args CommandArgs) error {
	doc, err := c.docs.Get(args.URI)
	if err != nil {
		return err
	}

	current, err := doc.TextInRange(args.Range)
	if err != nil {
		return fmt.Errorf("span no longer valid in %s: %w", args.URI, err)
	}
	if current != args.Misspelled {
		return fmt.Errorf("span in %s now holds %q, expected %q", args.URI, current, args.Misspelled)
	}
	return nil
}
