package huddle

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/putto11262002/huddle/core"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTimeout = 2 * time.Second

// testConfig loads the configuration with an in-memory store and no static files.
func testConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("STORE_DRIVER", StoreMemory)
	t.Setenv("STATIC_DIR", filepath.Join(t.TempDir(), "missing"))
	config, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, config.Validate())
	return config
}

func newTestApp(t *testing.T, opts ...AppOption) (*App, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	app, err := New(ctx, testConfig(t), zap.NewNop(), opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), baseTimeout)
		defer closeCancel()
		app.Close(closeCtx)
		srv.Close()
		cancel()
	})
	return app, srv
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	url := strings.Replace(srv.URL, "http://", "ws://", 1) + "/ws"
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	res.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(eventType string, payload interface{}) {
	c.t.Helper()
	e, err := core.NewEvent(eventType, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(e))
}

// readUntil reads events until one of type eventType arrives and returns it.
func (c *testClient) readUntil(eventType string) *core.Event {
	c.t.Helper()
	deadline := time.Now().Add(baseTimeout)
	for {
		c.conn.SetReadDeadline(deadline)
		var e core.Event
		require.NoError(c.t, c.conn.ReadJSON(&e), "waiting for %q", eventType)
		if e.Type == eventType {
			return &e
		}
	}
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) AppendMessage(ctx context.Context, input core.MessageCreateInput) (*core.Message, error) {
	args := m.Called(ctx, input)
	msg, _ := args.Get(0).(*core.Message)
	return msg, args.Error(1)
}

func (m *mockStore) ListMessages(ctx context.Context, groupID string) ([]core.Message, error) {
	args := m.Called(ctx, groupID)
	messages, _ := args.Get(0).([]core.Message)
	return messages, args.Error(1)
}

func (m *mockStore) JoinGroup(ctx context.Context, groupID, userName string) error {
	return m.Called(ctx, groupID, userName).Error(0)
}

func (m *mockStore) Persistent() bool { return true }

func (m *mockStore) Name() string { return "mock" }

func (m *mockStore) Close() error { return nil }
