package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/foschi-ia/recordar/internal/reminder"
	"github.com/foschi-ia/recordar/internal/timeparse"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Reminders ReminderService
	Gateway   Poller
	History   HistoryStore // optional; get_history is not registered without it
	Version   string
}

// NewMCPServer creates an MCP server exposing reminder tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"recordar",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("recordar: Spanish reminders (\"en 10 minutos\", \"mañana a las 9\", \"el 5 de marzo a las 10\") and their notifications."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_reminder",
			mcp.WithDescription("Create a reminder from Spanish free text that includes when, e.g. \"comprar pan en 10 minutos\"."),
			mcp.WithString("usuario_id", mcp.Description("Owner of the reminder"), mcp.Required()),
			mcp.WithString("texto", mcp.Description("What to remember and when"), mcp.Required()),
		),
		mcpCreateReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List the owner's pending reminders in creation order."),
			mcp.WithString("usuario_id", mcp.Description("Owner of the reminders"), mcp.Required()),
		),
		mcpListReminders(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_reminders",
			mcp.WithDescription("Delete every pending reminder of the owner."),
			mcp.WithString("usuario_id", mcp.Description("Owner of the reminders"), mcp.Required()),
		),
		mcpClearReminders(deps),
	)

	s.AddTool(
		mcp.NewTool("poll_notifications",
			mcp.WithDescription("Return and consume the owner's fired reminders."),
			mcp.WithString("usuario_id", mcp.Description("Owner of the notifications"), mcp.Required()),
		),
		mcpPollNotifications(deps),
	)

	if deps.History != nil {
		s.AddTool(
			mcp.NewTool("get_history",
				mcp.WithDescription("Return the owner's most recent conversation log entries, oldest first."),
				mcp.WithString("usuario_id", mcp.Description("Owner of the log"), mcp.Required()),
				mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
			),
			mcpGetHistory(deps),
		)
	}

	return s
}

func mcpCreateReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("usuario_id")
		if err != nil {
			return mcpError("usuario_id is required"), nil
		}
		text, err := req.RequireString("texto")
		if err != nil {
			return mcpError("texto is required"), nil
		}

		rem, err := deps.Reminders.Create(ctx, owner, text)
		var perr *timeparse.ParseError
		switch {
		case errors.As(err, &perr):
			return mcpError(fmt.Sprintf("could not understand when: %v", err)), nil
		case errors.Is(err, reminder.ErrLimitReached):
			return mcpError("pending reminder limit reached"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("failed to create reminder: %v", err)), nil
		}
		return mcpJSON(rem)
	}
}

func mcpListReminders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("usuario_id")
		if err != nil {
			return mcpError("usuario_id is required"), nil
		}
		pending, err := deps.Reminders.List(ctx, owner)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list reminders: %v", err)), nil
		}
		return mcpJSON(pending)
	}
}

func mcpClearReminders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("usuario_id")
		if err != nil {
			return mcpError("usuario_id is required"), nil
		}
		n, err := deps.Reminders.Clear(ctx, owner)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to clear reminders: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted %d pending reminders", n)), nil
	}
}

func mcpPollNotifications(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("usuario_id")
		if err != nil {
			return mcpError("usuario_id is required"), nil
		}
		return mcpJSON(deps.Gateway.Poll(owner))
	}
}

func mcpGetHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := req.RequireString("usuario_id")
		if err != nil {
			return mcpError("usuario_id is required"), nil
		}
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > maxHistoryLen {
			limit = maxHistoryLen
		}
		entries, err := deps.History.ListHistory(ctx, owner, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read history: %v", err)), nil
		}
		return mcpJSON(entries)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
