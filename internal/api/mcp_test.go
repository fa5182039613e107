package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foschi-ia/recordar/internal/notify"
	"github.com/foschi-ia/recordar/internal/reminder"
	"github.com/foschi-ia/recordar/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *notify.Gateway) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	gw := notify.NewGateway()
	svc := reminder.NewService(store, reminder.Config{
		Location:  time.UTC,
		FreeLimit: 1,
		Now:       func() time.Time { return testNow },
	})
	return MCPDeps{Reminders: svc, Gateway: gw, History: store}, store, gw
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "no content in result")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewMCPServer_Builds(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	assert.NotNil(t, NewMCPServer(deps))
}

func TestMCPTool_CreateReminder(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)

	result, err := mcpCreateReminder(deps)(context.Background(), makeCallToolRequest("create_reminder", map[string]interface{}{
		"usuario_id": "u1",
		"texto":      "recordame regar las plantas en 2 horas",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var rem storage.Reminder
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &rem))
	assert.Equal(t, "regar las plantas", rem.Message)
	assert.True(t, rem.DueAt.Equal(testNow.Add(2*time.Hour)))

	n, err := store.CountPendingReminders(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMCPTool_CreateReminder_Errors(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpCreateReminder(deps)
	ctx := context.Background()

	result, err := handler(ctx, makeCallToolRequest("create_reminder", map[string]interface{}{"usuario_id": "u1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "texto is required", toolText(t, result))

	result, err = handler(ctx, makeCallToolRequest("create_reminder", map[string]interface{}{"usuario_id": "u1", "texto": "regar las plantas"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "could not understand when")

	result, err = handler(ctx, makeCallToolRequest("create_reminder", map[string]interface{}{"usuario_id": "u1", "texto": "uno en 5 minutos"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = handler(ctx, makeCallToolRequest("create_reminder", map[string]interface{}{"usuario_id": "u1", "texto": "dos en 5 minutos"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "pending reminder limit reached", toolText(t, result))
}

func TestMCPTool_ListAndClear(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	ctx := context.Background()
	_, err := store.AddReminder(ctx, "u1", "sacar la basura", testNow.Add(time.Hour))
	require.NoError(t, err)

	result, err := mcpListReminders(deps)(ctx, makeCallToolRequest("list_reminders", map[string]interface{}{"usuario_id": "u1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var list []storage.Reminder
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "sacar la basura", list[0].Message)

	result, err = mcpClearReminders(deps)(ctx, makeCallToolRequest("clear_reminders", map[string]interface{}{"usuario_id": "u1"}))
	require.NoError(t, err)
	assert.Equal(t, "Deleted 1 pending reminders", toolText(t, result))

	result, err = mcpListReminders(deps)(ctx, makeCallToolRequest("list_reminders", map[string]interface{}{"usuario_id": "u1"}))
	require.NoError(t, err)
	assert.Equal(t, "[]", toolText(t, result))
}

func TestMCPTool_PollNotifications(t *testing.T) {
	deps, _, gw := newTestMCPDeps(t)
	gw.Push(notify.Notification{ID: "r1", Owner: "u1", Message: "comprar pan", DueAt: testNow, FiredAt: testNow})

	handler := mcpPollNotifications(deps)
	result, err := handler(context.Background(), makeCallToolRequest("poll_notifications", map[string]interface{}{"usuario_id": "u1"}))
	require.NoError(t, err)
	var got []notify.Notification
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)

	result, err = handler(context.Background(), makeCallToolRequest("poll_notifications", map[string]interface{}{"usuario_id": "u1"}))
	require.NoError(t, err)
	assert.Equal(t, "[]", toolText(t, result))
}

func TestMCPTool_GetHistory(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	ctx := context.Background()
	for _, msg := range []string{"a", "b", "c"} {
		_, err := store.AppendHistory(ctx, storage.HistoryEntry{Owner: "u1", User: msg, Assistant: "ok"})
		require.NoError(t, err)
	}

	result, err := mcpGetHistory(deps)(ctx, makeCallToolRequest("get_history", map[string]interface{}{"usuario_id": "u1", "limit": 2}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var entries []storage.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].User)
	assert.Equal(t, "c", entries[1].User)
}

func TestMCPServer_ConcurrentCreates(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	handler := mcpCreateReminder(deps)

	var wg sync.WaitGroup
	for _, owner := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			result, err := handler(context.Background(), makeCallToolRequest("create_reminder", map[string]interface{}{
				"usuario_id": owner,
				"texto":      "algo en 1 minuto",
			}))
			assert.NoError(t, err)
			assert.False(t, result.IsError)
		}(owner)
	}
	wg.Wait()

	for _, owner := range []string{"a", "b", "c", "d", "e"} {
		n, err := store.CountPendingReminders(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, 1, n, owner)
	}
}
