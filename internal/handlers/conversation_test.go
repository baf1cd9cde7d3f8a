package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/services/events"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/session"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/storage"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
)

const testDocument = `
<dialogue>
	<starter id="greet"/>
	<line id="greet" next="ask">Hi.</line>
	<line id="ask">
		Well?
		<choice text="Aye" next="yes"/>
		<choice text="Nay" next="no"/>
	</line>
	<line id="yes">Good.</line>
	<line id="no">Fine.</line>
</dialogue>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupManager builds a real manager over a temp-dir library, mock storage
// and a miniredis-backed broadcaster, tuned fast enough that lines finish
// revealing within a few ticks.
func setupManager(t *testing.T) (*session.Manager, *storage.MockStorage, *storage.Library) {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "dialogue", "en")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "intro"+storage.DocExt), []byte(testDocument), 0o644))

	lib, err := storage.LoadLibrary(root, "en", testLogger())
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewMockStorage()
	manager := session.NewManager(session.Config{
		Library:      lib,
		Store:        store,
		Broadcaster:  events.NewBroadcaster(client, testLogger()),
		Logger:       testLogger(),
		TickInterval: time.Millisecond,
		Pacing:       conversation.Pacing{TextSpeed: 0.000001, SpeedMult: 1},
	})
	t.Cleanup(manager.Close)

	return manager, store, lib
}

// waitForState polls a running session until it reaches the wanted state.
func waitForState(t *testing.T, m *session.Manager, id uuid.UUID, want conversation.State) session.View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if view, ok := m.View(id); ok && view.State == want {
			return view
		}
		time.Sleep(time.Millisecond)
	}
	view, _ := m.View(id)
	t.Fatalf("Session never reached %s, last view: %+v", want, view)
	return session.View{}
}

func startSession(t *testing.T, h *ConversationHandler) session.View {
	t.Helper()
	body, _ := json.Marshal(StartConversationRequest{Document: "intro", PlayerID: "p1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var view session.View
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	return view
}

func TestConversationHandler_Start(t *testing.T) {
	manager, store, _ := setupManager(t)
	h := NewConversationHandler(manager, store, "", testLogger())

	view := startSession(t, h)
	assert.Equal(t, "intro", view.Document)
	assert.Equal(t, "greet", view.LineID)
	assert.NotEqual(t, uuid.Nil, view.ID)
}

func TestConversationHandler_StartDefaultLanguage(t *testing.T) {
	root := t.TempDir()
	for lang, text := range map[string]string{"en": "Hi.", "fr": "Salut."} {
		dir := filepath.Join(root, "dialogue", lang)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		doc := `
<dialogue>
	<starter id="greet"/>
	<line id="greet">` + text + `</line>
</dialogue>`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "intro"+storage.DocExt), []byte(doc), 0o644))
	}
	lib, err := storage.LoadLibrary(root, "en", testLogger())
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewMockStorage()
	manager := session.NewManager(session.Config{
		Library:      lib,
		Store:        store,
		Broadcaster:  events.NewBroadcaster(client, testLogger()),
		Logger:       testLogger(),
		TickInterval: time.Millisecond,
		Pacing:       conversation.Pacing{TextSpeed: 0.000001, SpeedMult: 1},
	})
	t.Cleanup(manager.Close)

	// A start request that names no language gets the configured default.
	h := NewConversationHandler(manager, store, "fr", testLogger())
	view := startSession(t, h)
	assert.Equal(t, "fr", view.Language)

	got := waitForState(t, manager, view.ID, conversation.StateAwaitingAdvance)
	assert.Equal(t, "Salut.", got.Text)
}

func TestConversationHandler_StartErrors(t *testing.T) {
	manager, store, _ := setupManager(t)
	h := NewConversationHandler(manager, store, "", testLogger())

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
	}{
		{
			name:           "method not allowed",
			method:         http.MethodGet,
			path:           "/v1/conversations",
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "invalid JSON",
			method:         http.MethodPost,
			path:           "/v1/conversations",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing document",
			method:         http.MethodPost,
			path:           "/v1/conversations",
			body:           `{"player_id":"p1"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown document",
			method:         http.MethodPost,
			path:           "/v1/conversations",
			body:           `{"document":"missing"}`,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid session id",
			method:         http.MethodGet,
			path:           "/v1/conversations/not-a-uuid",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader([]byte(tc.body)))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tc.expectedStatus, w.Code, w.Body.String())

			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestConversationHandler_AdvanceAndChoose(t *testing.T) {
	manager, store, _ := setupManager(t)
	h := NewConversationHandler(manager, store, "", testLogger())

	view := startSession(t, h)
	waitForState(t, manager, view.ID, conversation.StateAwaitingAdvance)

	// Confirm the first line.
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/"+view.ID.String()+"/advance", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var after session.View
	require.NoError(t, json.NewDecoder(w.Body).Decode(&after))
	assert.Equal(t, "ask", after.LineID)

	// The second line suspends for its own confirm before the choices come up.
	waitForState(t, manager, view.ID, conversation.StateAwaitingAdvance)
	req = httptest.NewRequest(http.MethodPost, "/v1/conversations/"+view.ID.String()+"/advance", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	choiceView := waitForState(t, manager, view.ID, conversation.StateAwaitingChoice)
	assert.Equal(t, []string{"Aye", "Nay"}, choiceView.Choices)

	body, _ := json.Marshal(ChooseRequest{Index: 1})
	req = httptest.NewRequest(http.MethodPost, "/v1/conversations/"+view.ID.String()+"/choose", bytes.NewReader(body))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, json.NewDecoder(w.Body).Decode(&after))
	assert.Equal(t, "no", after.LineID)
}

func TestConversationHandler_ChooseRequiresAwaitingChoice(t *testing.T) {
	manager, store, _ := setupManager(t)
	h := NewConversationHandler(manager, store, "", testLogger())

	view := startSession(t, h)
	waitForState(t, manager, view.ID, conversation.StateAwaitingAdvance)

	// Out-of-range index on a line suspended for a choice is a 400 and
	// leaves the session running.
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/"+view.ID.String()+"/advance", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Confirm the choice line itself so the choices are presented.
	waitForState(t, manager, view.ID, conversation.StateAwaitingAdvance)
	req = httptest.NewRequest(http.MethodPost, "/v1/conversations/"+view.ID.String()+"/advance", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	waitForState(t, manager, view.ID, conversation.StateAwaitingChoice)
	body, _ := json.Marshal(ChooseRequest{Index: 7})
	req = httptest.NewRequest(http.MethodPost, "/v1/conversations/"+view.ID.String()+"/choose", bytes.NewReader(body))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	_, running := manager.View(view.ID)
	assert.True(t, running, "session should survive a rejected choice")
}

func TestConversationHandler_SignalUnknownSession(t *testing.T) {
	manager, store, _ := setupManager(t)
	h := NewConversationHandler(manager, store, "", testLogger())

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/"+uuid.NewString()+"/advance", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversationHandler_ReadFallsBackToSnapshot(t *testing.T) {
	manager, store, _ := setupManager(t)
	h := NewConversationHandler(manager, store, "", testLogger())

	id := uuid.New()
	require.NoError(t, store.SaveSession(t.Context(), id, &storage.Snapshot{
		ID:       id.String(),
		Document: "intro",
		State:    "ended",
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/"+id.String(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var snap storage.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.Equal(t, "ended", snap.State)
}

func TestConversationHandler_Stop(t *testing.T) {
	manager, store, _ := setupManager(t)
	h := NewConversationHandler(manager, store, "", testLogger())

	view := startSession(t, h)

	req := httptest.NewRequest(http.MethodDelete, "/v1/conversations/"+view.ID.String(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, running := manager.View(view.ID)
	assert.False(t, running, "session should be gone after DELETE")
}
