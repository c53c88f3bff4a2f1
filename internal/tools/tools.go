// Package tools defines the functions the assistant can invoke during a call
// and executes assembled invocations on behalf of the relay.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/callweave/callweave/internal/engine"
	"github.com/callweave/callweave/internal/session"
)

// Tool is one function the assistant may call. Parameters is the JSON schema
// advertised to the engine during session configuration.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any, call CallContext) (session.ToolResult, error)
}

// CallContext identifies the call a tool invocation belongs to.
type CallContext struct {
	CallSID string
	Caller  session.CallerIdentity
}

// NameStore persists the caller's name once a tool learns it. Satisfied by
// the storage layer.
type NameStore interface {
	SetCallerName(callSID, name string) error
}

// Registry holds the tool set for the lifetime of the process. It is built
// once at startup and read-only afterwards, so no locking is needed.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

func (r *Registry) Register(tool Tool) error {
	if strings.TrimSpace(tool.Name) == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Schemas returns the tool definitions in registration order, shaped for the
// engine's session configuration.
func (r *Registry) Schemas() []engine.ToolSchema {
	schemas := make([]engine.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		schemas = append(schemas, engine.ToolSchema{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	return schemas
}

// Execute runs one assembled tool invocation. Unknown tool names are an
// error the relay reports back to the engine rather than a crash.
// Implements session.ToolExecutor.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, caller session.CallerIdentity, callSID string) (session.ToolResult, error) {
	tool, ok := r.tools[name]
	if !ok {
		return session.ToolResult{}, fmt.Errorf("unknown tool %q", name)
	}

	r.logger.Info("executing tool", "tool", name, "call_sid", callSID)
	result, err := tool.Handler(ctx, args, CallContext{CallSID: callSID, Caller: caller})
	if err != nil {
		return session.ToolResult{}, fmt.Errorf("tool %s: %w", name, err)
	}
	return result, nil
}

// Builtin tool names.
const (
	ToolUpdateCallerName = "update_caller_name"
	ToolEndCall          = "end_call"
)

// RegisterBuiltins installs the default tool set: recording the caller's
// name and hanging up the call.
func RegisterBuiltins(r *Registry, store NameStore) error {
	if err := r.Register(Tool{
		Name:        ToolUpdateCallerName,
		Description: "Record the caller's name once they introduce themselves.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "The caller's name as they stated it.",
				},
			},
			"required": []string{"name"},
		},
		Handler: func(_ context.Context, args map[string]any, call CallContext) (session.ToolResult, error) {
			name, _ := args["name"].(string)
			name = strings.TrimSpace(name)
			if name == "" {
				return session.ToolResult{}, fmt.Errorf("name argument is required")
			}
			if store != nil {
				if err := store.SetCallerName(call.CallSID, name); err != nil {
					return session.ToolResult{}, fmt.Errorf("persist caller name: %w", err)
				}
			}
			return session.ToolResult{
				Output:     fmt.Sprintf("Caller name recorded as %s.", name),
				CallerName: name,
			}, nil
		},
	}); err != nil {
		return err
	}

	return r.Register(Tool{
		Name:        ToolEndCall,
		Description: "End the call. Use when the caller says goodbye or the conversation is finished.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(_ context.Context, _ map[string]any, _ CallContext) (session.ToolResult, error) {
			return session.ToolResult{
				Output:  "Ending the call. Say a brief goodbye.",
				EndCall: true,
			}, nil
		},
	})
}
