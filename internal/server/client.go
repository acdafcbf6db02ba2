package server

import (
	"context"

	"spellfix/internal/jsonrpc"
	"spellfix/internal/protocol"
)

// hostClient issues client-bound requests over the session connection. It
// is the server-side view of the editor.
type hostClient struct {
	conn *jsonrpc.Conn
}

func (h *hostClient) ShowDocument(ctx context.Context, params protocol.ShowDocumentParams) (protocol.ShowDocumentResult, error) {
	var result protocol.ShowDocumentResult
	err := h.conn.Call(ctx, protocol.MethodWindowShowDocument, params, &result)
	return result, err
}

func (h *hostClient) ApplyEdit(ctx context.Context, params protocol.ApplyWorkspaceEditParams) (protocol.ApplyWorkspaceEditResponse, error) {
	var result protocol.ApplyWorkspaceEditResponse
	err := h.conn.Call(ctx, protocol.MethodWorkspaceApplyEdit, params, &result)
	return result, err
}

func (h *hostClient) ShowMessage(ctx context.Context, typ protocol.MessageType, message string) error {
	return h.conn.Notify(ctx, protocol.MethodWindowShowMessage, protocol.ShowMessageParams{
		Type:    typ,
		Message: message,
	})
}
