package workspace

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/lastminute/internal/agent"
	"github.com/ashureev/lastminute/internal/annotation"
	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/identity"
)

type testClient struct {
	t    *testing.T
	ctx  context.Context
	conn *websocket.Conn
}

func dialWorkspace(t *testing.T, sessionID string) *testClient {
	t.Helper()
	repo := newTestRepo(t)
	h := NewHandler(testDeps(repo), NewRegistry(), "", true)

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	r.Handle("/ws/workspace", h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/workspace?id=" + sessionID
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return &testClient{t: t, ctx: ctx, conn: conn}
}

func (c *testClient) send(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.Write(c.ctx, websocket.MessageText, []byte(raw)))
}

func (c *testClient) next() serverEvent {
	c.t.Helper()
	for {
		typ, data, err := c.conn.Read(c.ctx)
		require.NoError(c.t, err)
		if typ != websocket.MessageText {
			continue
		}
		var ev serverEvent
		require.NoError(c.t, json.Unmarshal(data, &ev))
		return ev
	}
}

// until reads events until match returns true.
func (c *testClient) until(match func(serverEvent) bool) serverEvent {
	c.t.Helper()
	for {
		if ev := c.next(); match(ev) {
			return ev
		}
	}
}

func ofType(typ string) func(serverEvent) bool {
	return func(ev serverEvent) bool { return ev.Type == typ }
}

func TestWorkspaceMissingSession(t *testing.T) {
	c := dialWorkspace(t, "missing")

	ev := c.next()
	assert.Equal(t, evSessionError, ev.Type)
	assert.Equal(t, "session not found or expired", ev.Error)

	_, _, err := c.conn.Read(c.ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestWorkspaceReady(t *testing.T) {
	c := dialWorkspace(t, "s-1")

	ev := c.next()
	require.Equal(t, evReady, ev.Type)
	require.NotNil(t, ev.Ready)
	assert.Equal(t, "s-1", ev.Ready.Session.ID)
	assert.Equal(t, agent.StateIdle, ev.Ready.State)
	assert.Equal(t, 2, ev.Ready.Progress.Total)
	assert.Equal(t, []int{0, 0}, ev.Ready.CardBeats)
}

func TestWorkspaceChatTurn(t *testing.T) {
	c := dialWorkspace(t, "s-1")
	c.until(ofType(evReady))

	c.send(`{"type":"send","text":"what is recursion?"}`)

	assert.Equal(t, agent.StateThinking, c.until(ofType(evState)).State)
	user := c.until(ofType(evMessage))
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "what is recursion?"}, *user.Message)

	reply := c.until(ofType(evMessage))
	assert.Equal(t, domain.RoleAssistant, reply.Message.Role)
	assert.Equal(t, "Recursion is a function calling itself.", reply.Message.Content)

	c.until(func(ev serverEvent) bool { return ev.Type == evState && ev.State == agent.StateIdle })
}

func TestWorkspaceBlankSendIsRejected(t *testing.T) {
	c := dialWorkspace(t, "s-1")
	c.until(ofType(evReady))

	c.send(`{"type":"send","text":"   "}`)
	ev := c.until(ofType(evError))
	assert.Equal(t, agent.ErrEmptyMessage.Error(), ev.Error)
}

func TestWorkspaceQuizProgress(t *testing.T) {
	c := dialWorkspace(t, "s-1")
	c.until(ofType(evReady))

	c.send(`{"type":"quiz_select","option":1}`)
	c.until(ofType(evProgress))
	c.send(`{"type":"quiz_submit"}`)
	ev := c.until(ofType(evProgress))
	require.NotNil(t, ev.Progress)
	assert.True(t, ev.Progress.Attempt.Submitted)
	require.NotNil(t, ev.Progress.Attempt.IsCorrect)
	assert.False(t, *ev.Progress.Attempt.IsCorrect)
	assert.False(t, ev.Progress.CanGoNext)
	require.Len(t, ev.Progress.WeakConcepts, 1)

	c.send(`{"type":"quiz_select","option":0}`)
	c.until(ofType(evProgress))
	c.send(`{"type":"quiz_submit"}`)
	ev = c.until(ofType(evProgress))
	assert.True(t, ev.Progress.CanGoNext)
	assert.True(t, ev.Progress.Checklist[0].Done)

	c.send(`{"type":"next"}`)
	ev = c.until(ofType(evProgress))
	assert.Equal(t, 1, ev.Progress.Current)
	assert.True(t, ev.Progress.CanGoPrev)

	c.send(`{"type":"checklist_toggle","id":"task-0"}`)
	ev = c.until(ofType(evProgress))
	assert.True(t, ev.Progress.Checklist[2].Done)
}

func TestWorkspaceAnnotationThenAnalyze(t *testing.T) {
	c := dialWorkspace(t, "s-1")
	c.until(ofType(evReady))

	c.send(`{"type":"pointer_down","surface":"sketch","x":10,"y":10}`)
	c.send(`{"type":"pointer_move","surface":"sketch","x":60,"y":40}`)
	c.send(`{"type":"pointer_up","surface":"sketch"}`)

	ev := c.until(ofType(evAnnotation))
	require.NotNil(t, ev.Annotation)
	assert.Equal(t, SketchSurfaceID, ev.Annotation.Surface)
	assert.Equal(t, annotation.TypeDrawnOn, ev.Annotation.Type)
	assert.True(t, strings.HasPrefix(ev.Annotation.ImageDataURL, "data:image/png;base64,"))

	c.send(`{"type":"send","text":"explain this"}`)
	reply := c.until(func(ev serverEvent) bool {
		return ev.Type == evMessage && ev.Message.Role == domain.RoleAssistant
	})
	assert.Equal(t, "analysis of drawn-on", reply.Message.Content)
}

func TestWorkspaceAnalyzeWithoutAnnotation(t *testing.T) {
	c := dialWorkspace(t, "s-1")
	c.until(ofType(evReady))

	c.send(`{"type":"send","text":"analyze this"}`)
	reply := c.until(func(ev serverEvent) bool {
		return ev.Type == evMessage && ev.Message.Role == domain.RoleAssistant
	})
	assert.Equal(t, agent.NoAnnotationMessage, reply.Message.Content)
}

func TestWorkspacePingAndUnknown(t *testing.T) {
	c := dialWorkspace(t, "s-1")
	c.until(ofType(evReady))

	c.send(`{"type":"ping"}`)
	c.until(ofType(evPong))

	c.send(`{"type":"teleport"}`)
	ev := c.until(ofType(evError))
	assert.Contains(t, ev.Error, "teleport")

	c.send(`{"type":"pointer_down","surface":"nowhere"}`)
	ev = c.until(ofType(evError))
	assert.Contains(t, ev.Error, "nowhere")
}

func TestWorkspaceVoiceTurn(t *testing.T) {
	c := dialWorkspace(t, "s-1")
	c.until(ofType(evReady))

	c.send(`{"type":"voice","supported":true,"listening":false}`)
	c.send(`{"type":"mic_start"}`)
	assert.Equal(t, agent.StateListening, c.until(ofType(evState)).State)

	c.send(`{"type":"voice","listening":true,"final":"what is recursion"}`)
	c.send(`{"type":"voice","listening":false}`)

	user := c.until(ofType(evMessage))
	assert.Equal(t, "what is recursion", user.Message.Content)
	reply := c.until(ofType(evMessage))
	assert.Equal(t, domain.RoleAssistant, reply.Message.Role)
}
