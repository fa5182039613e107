package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foschi-ia/recordar/internal/history"
	"github.com/foschi-ia/recordar/internal/notify"
	"github.com/foschi-ia/recordar/internal/scheduler"
	"github.com/foschi-ia/recordar/internal/storage"
)

func TestReminderFiresOnceThroughPoll(t *testing.T) {
	env := newTestEnv(t, testToken)

	w := env.do(t, http.MethodPost, "/preguntar", PreguntarRequest{Mensaje: "recordame comprar pan en 1 minutos", UsuarioID: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	tickAt := testNow.Add(90 * time.Second)
	sched := scheduler.New(env.store, env.gateway, history.NewRecorder(env.store, time.UTC), env.store, scheduler.Options{
		Location: time.UTC,
		Now:      func() time.Time { return tickAt },
	})
	n, err := sched.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	w = env.do(t, http.MethodGet, "/notificaciones/u1", nil)
	var got []notify.Notification
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "comprar pan", got[0].Message)

	w = env.do(t, http.MethodGet, "/notificaciones/u1", nil)
	assert.JSONEq(t, "[]", w.Body.String())

	n, err = sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a fired reminder must not fire again")

	entries, err := env.store.ListHistory(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var fired []storage.HistoryEntry
	for _, e := range entries {
		if e.Kind == storage.HistoryReminder {
			fired = append(fired, e)
		}
	}
	require.Len(t, fired, 1)
	assert.True(t, strings.HasPrefix(fired[0].Assistant, history.ReminderPrefix))
	assert.Contains(t, fired[0].Assistant, "comprar pan")
}
