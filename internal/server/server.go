// Package server wires the spellfix components into a language server: it
// owns the connection to the client, the initialize lifecycle, and the
// routing of document sync, code action, and command execution traffic.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"spellfix/internal/app"
	"spellfix/internal/autocorrect"
	"spellfix/internal/config"
	"spellfix/internal/document"
	"spellfix/internal/jsonrpc"
	"spellfix/internal/protocol"
	"spellfix/internal/rules"
	"spellfix/internal/script"
	"spellfix/internal/suggest"
)

// Name and Version identify the server to clients.
const (
	Name    = "spellfix"
	Version = "0.1.0"
)

// ErrExitBeforeShutdown is returned by Run when the client sends exit
// without a preceding shutdown request.
var ErrExitBeforeShutdown = errors.New("exit received before shutdown")

// State is the lifecycle phase of the server.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Server is one spellfix language server session.
type Server struct {
	conn   *jsonrpc.Conn
	logger *app.Logger
	reload func() (config.Settings, error)

	state atomic.Int32

	docs     *document.Store
	registry *autocorrect.Registry

	// compMu guards the settings and the components built from them,
	// which are replaced wholesale on a configuration reload.
	compMu   sync.RWMutex
	settings config.Settings
	provider *autocorrect.Provider
	command  *autocorrect.Command
	filter   *script.Filter

	workspaceRoot string

	// inflight tracks cancellable request contexts by request ID.
	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc

	exitOnce sync.Once
	exitCh   chan struct{}
	exited   error
}

// Option configures a Server.
type Option func(*Server)

// WithReload installs the function used to re-read settings when the
// client signals a configuration change.
func WithReload(reload func() (config.Settings, error)) Option {
	return func(s *Server) { s.reload = reload }
}

// New creates a server over the given connection. Components that depend on
// the workspace root are built during initialize.
func New(conn *jsonrpc.Conn, settings config.Settings, logger *app.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = app.NullLogger
	}
	s := &Server{
		conn:     conn,
		settings: settings,
		logger:   logger.WithComponent("server"),
		docs:     document.NewStore(),
		registry: autocorrect.NewRegistry(logger),
		inflight: make(map[string]context.CancelFunc),
		exitCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle phase.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

// Run reads and dispatches messages until the client exits or the
// connection fails.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		s.compMu.Lock()
		if s.filter != nil {
			_ = s.filter.Close()
			s.filter = nil
		}
		s.compMu.Unlock()
	}()

	for {
		select {
		case <-s.exitCh:
			return s.exited
		default:
		}

		msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.exitCh:
				return s.exited
			default:
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		switch m := msg.(type) {
		case *jsonrpc.Request:
			s.dispatchRequest(ctx, m)
		case *jsonrpc.Notification:
			s.handleNotification(ctx, m)
		}
	}
}

// dispatchRequest answers a request, running it on its own goroutine with a
// context that $/cancelRequest can cancel.
func (s *Server) dispatchRequest(ctx context.Context, req *jsonrpc.Request) {
	reqCtx, cancel := context.WithCancel(ctx)
	key := string(req.ID)

	s.inflightMu.Lock()
	s.inflight[key] = cancel
	s.inflightMu.Unlock()

	go func() {
		defer func() {
			s.inflightMu.Lock()
			delete(s.inflight, key)
			s.inflightMu.Unlock()
			cancel()
		}()

		result, rpcErr := s.handleRequest(reqCtx, req)
		if err := s.conn.Respond(req.ID, result, rpcErr); err != nil {
			s.logger.Warn("respond to %s: %v", req.Method, err)
		}
	}()
}

func (s *Server) handleRequest(ctx context.Context, req *jsonrpc.Request) (any, *jsonrpc.Error) {
	s.logger.Debug("request %s", req.Method)

	if req.Method == protocol.MethodInitialize {
		return s.handleInitialize(req.Params)
	}

	switch s.State() {
	case StateUninitialized, StateInitializing:
		return nil, jsonrpc.NewError(jsonrpc.CodeServerNotInitialized, "server not initialized")
	case StateShutdown:
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "server is shut down")
	}

	switch req.Method {
	case protocol.MethodShutdown:
		s.setState(StateShutdown)
		return nil, nil

	case protocol.MethodTextDocumentCodeAction:
		return s.handleCodeAction(ctx, req.Params)

	case protocol.MethodWorkspaceExecuteCommand:
		return s.handleExecuteCommand(ctx, req.Params)

	default:
		return nil, jsonrpc.Errorf(jsonrpc.CodeMethodNotFound, "method not found: %s", req.Method)
	}
}

func (s *Server) handleInitialize(raw json.RawMessage) (any, *jsonrpc.Error) {
	if s.State() != StateUninitialized {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "server already initialized")
	}
	s.setState(StateInitializing)

	var params protocol.InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			s.setState(StateUninitialized)
			return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "initialize params: %v", err)
		}
	}

	s.workspaceRoot = workspaceRoot(params)

	s.compMu.Lock()
	s.buildComponentsLocked()
	s.compMu.Unlock()

	s.logger.Info("initialized for workspace %s (client %s)", s.workspaceRoot, clientName(params))

	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			CodeActionProvider: &protocol.CodeActionOptions{
				CodeActionKinds: []protocol.CodeActionKind{protocol.CodeActionKindQuickFix},
			},
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{autocorrect.CommandName},
			},
		},
		ServerInfo: &protocol.ServerInfo{Name: Name, Version: Version},
	}, nil
}

// buildComponentsLocked assembles the correction pipeline from the current
// settings. Called with compMu held, both at initialize and on every
// settings reload; a rebuilt provider replaces the previous one in the
// registry under the same name.
func (s *Server) buildComponentsLocked() {
	if s.filter != nil {
		_ = s.filter.Close()
		s.filter = nil
	}

	store := rules.NewStore(s.settings.ResolveRulesFile(s.workspaceRoot), s.settings.Rules.Key)

	var opts []autocorrect.ProviderOption
	if path := s.settings.Filter.Script; path != "" {
		filter, err := script.NewFilter(path, s.logger)
		if err != nil {
			s.logger.Warn("suggestion filter disabled: %v", err)
		} else {
			s.filter = filter
			opts = append(opts, autocorrect.WithFilter(filter))
		}
	}
	if s.settings.LLM.Enabled {
		timeout := time.Duration(s.settings.LLM.TimeoutSeconds) * time.Second
		source := suggest.NewLLMSource(s.settings.LLM.URL, s.settings.LLM.Model, timeout, s.logger)
		opts = append(opts, autocorrect.WithFallback(source))
	}

	s.provider = autocorrect.NewProvider(s.settings.Spellcheck.Source, s.docs, s.registry, s.logger, opts...)
	s.registry.Register("autocorrect", s.provider.CodeActions)

	client := &hostClient{conn: s.conn}
	s.command = autocorrect.NewCommand(client, s.docs, store, s.logger)
}

// UpdateSettings replaces the server settings and, when the session is
// already initialized, rebuilds the correction pipeline so the new
// spellcheck source, rules location, filter script, and LLM settings take
// effect immediately.
func (s *Server) UpdateSettings(settings config.Settings) {
	s.compMu.Lock()
	defer s.compMu.Unlock()

	s.settings = settings
	if s.provider != nil {
		s.buildComponentsLocked()
		s.logger.Info("settings reloaded, watching source %q", settings.Spellcheck.Source)
	}
}

// handleCodeAction offers corrections for file-scheme documents only.
func (s *Server) handleCodeAction(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params protocol.CodeActionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "codeAction params: %v", err)
	}

	if !protocol.IsFileURI(params.TextDocument.URI) {
		return []protocol.CodeAction{}, nil
	}

	s.compMu.RLock()
	provider := s.provider
	s.compMu.RUnlock()

	actions, err := provider.CodeActions(ctx, params)
	if err != nil {
		if errors.Is(err, document.ErrNotOpen) {
			return []protocol.CodeAction{}, nil
		}
		return nil, jsonrpc.Errorf(jsonrpc.CodeInternalError, "code actions: %v", err)
	}
	if actions == nil {
		actions = []protocol.CodeAction{}
	}
	return actions, nil
}

func (s *Server) handleExecuteCommand(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params protocol.ExecuteCommandParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "executeCommand params: %v", err)
	}

	if params.Command != autocorrect.CommandName {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "unknown command %q", params.Command)
	}
	if len(params.Arguments) != 1 {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "command %s expects 1 argument, got %d", params.Command, len(params.Arguments))
	}

	var args autocorrect.CommandArgs
	if err := json.Unmarshal(params.Arguments[0], &args); err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInvalidParams, "command arguments: %v", err)
	}

	s.compMu.RLock()
	command := s.command
	s.compMu.RUnlock()

	if err := command.Execute(ctx, args); err != nil {
		return nil, jsonrpc.Errorf(jsonrpc.CodeInternalError, "%v", err)
	}
	return nil, nil
}

func (s *Server) handleNotification(ctx context.Context, ntf *jsonrpc.Notification) {
	s.logger.Debug("notification %s", ntf.Method)

	switch ntf.Method {
	case protocol.MethodInitialized:
		if s.State() == StateInitializing {
			s.setState(StateRunning)
		}

	case protocol.MethodExit:
		s.exitOnce.Do(func() {
			if s.State() != StateShutdown {
				s.exited = ErrExitBeforeShutdown
			}
			close(s.exitCh)
			_ = s.conn.Close()
		})

	case protocol.MethodCancelRequest:
		s.cancelRequest(ntf.Params)

	case protocol.MethodTextDocumentDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := json.Unmarshal(ntf.Params, &params); err != nil {
			s.logger.Warn("didOpen params: %v", err)
			return
		}
		s.docs.Open(params.TextDocument)

	case protocol.MethodTextDocumentDidChange:
		var params protocol.DidChangeTextDocumentParams
		if err := json.Unmarshal(ntf.Params, &params); err != nil {
			s.logger.Warn("didChange params: %v", err)
			return
		}
		if err := s.docs.Change(params); err != nil {
			s.logger.Warn("didChange: %v", err)
		}

	case protocol.MethodTextDocumentDidClose:
		var params protocol.DidCloseTextDocumentParams
		if err := json.Unmarshal(ntf.Params, &params); err != nil {
			s.logger.Warn("didClose params: %v", err)
			return
		}
		s.docs.Close(params.TextDocument.URI)

	case protocol.MethodWorkspaceDidChangeConfiguration:
		// Settings live in the TOML layers; the notification is the cue
		// to re-read them.
		if s.reload == nil {
			s.logger.Debug("no settings reloader installed")
			return
		}
		settings, err := s.reload()
		if err != nil {
			s.logger.Warn("settings reload failed: %v", err)
			return
		}
		s.UpdateSettings(settings)
	}
}

// cancelRequest cancels the context of an in-flight request.
func (s *Server) cancelRequest(raw json.RawMessage) {
	var params protocol.CancelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		s.logger.Warn("cancel params: %v", err)
		return
	}

	s.inflightMu.Lock()
	cancel, ok := s.inflight[string(params.ID)]
	s.inflightMu.Unlock()

	if ok {
		cancel()
	}
}

// workspaceRoot picks the workspace directory from initialize params,
// falling back to the process working directory.
func workspaceRoot(params protocol.InitializeParams) string {
	if len(params.WorkspaceFolders) > 0 {
		if path := protocol.URIToFilePath(params.WorkspaceFolders[0].URI); path != "" {
			return path
		}
	}
	if params.RootURI != "" {
		if path := protocol.URIToFilePath(params.RootURI); path != "" {
			return path
		}
	}
	if params.RootPath != "" {
		return params.RootPath
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func clientName(params protocol.InitializeParams) string {
	if params.ClientInfo == nil || params.ClientInfo.Name == "" {
		return "unknown"
	}
	return params.ClientInfo.Name
}
