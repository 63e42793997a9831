package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":       "<html><body><h1>home</h1></body></html>",
		"about.html":       "<html><body><p>about</p></body></html>",
		"docs/index.html":  "<html><body>docs</body></html>",
		"css/b.css":        "a{color:red}",
		"img/c.png":        "png",
		"plain.html":       "<p>no body</p>",
		"notes.v2":         "dotted",
		"report.html.bak":  "backup",
		"nested/page.html": "<body>nested</body>",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func TestFindPortSkipsOccupied(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	taken := PortOf(occupied)

	l, err := FindPort("127.0.0.1", taken, 50)
	require.NoError(t, err)
	defer l.Close()

	port := PortOf(l)
	assert.NotEqual(t, taken, port)
	assert.Greater(t, port, taken)
}

func TestFindPortExhausted(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	_, err = FindPort("127.0.0.1", PortOf(occupied), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFreePort)
}

func TestFindPortRejectsBadStart(t *testing.T) {
	_, err := FindPort("127.0.0.1", 0, 5)
	assert.Error(t, err)
	_, err = FindPort("127.0.0.1", 70000, 5)
	assert.Error(t, err)
}

func TestStaticResolution(t *testing.T) {
	root := writeSite(t)
	srv := httptest.NewServer(New(Options{Root: root}, nil).Handler())
	defer srv.Close()

	testCases := []struct {
		path     string
		status   int
		contains string
	}{
		{"/", http.StatusOK, "home"},
		{"/about", http.StatusOK, "about"},
		{"/about.html", http.StatusOK, "about"},
		{"/docs", http.StatusOK, "docs"},
		{"/docs/", http.StatusOK, "docs"},
		{"/nested/page", http.StatusOK, "nested"},
		{"/css/b.css", http.StatusOK, "a{color:red}"},
		{"/notes.v2", http.StatusOK, "dotted"},
		{"/missing", http.StatusNotFound, ""},
		{"/report", http.StatusNotFound, ""},
		{"/../../etc/passwd", http.StatusNotFound, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.contains != "" {
				assert.Contains(t, string(body), tc.contains)
			}
		})
	}
}

func TestHTMLResponsesCarryClientScript(t *testing.T) {
	root := writeSite(t)
	srv := httptest.NewServer(New(Options{Root: root}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/about")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, "<html><body><p>about</p>"+scriptTag+"</body></html>", string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(srv.URL + "/css/b.css")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "a{color:red}", string(body))

	resp, err = http.Get(srv.URL + LiveReloadScript)
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "'"+LiveReloadPath+"'")
	assert.Contains(t, string(body), "var notify = false;")
}

func TestRejectsWrites(t *testing.T) {
	srv := httptest.NewServer(New(Options{Root: writeSite(t)}, nil).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/about", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestLiveReloadMessages(t *testing.T) {
	root := writeSite(t)
	s := New(Options{Root: root}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+LiveReloadPath, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Reload()
	msg := readMessage(t, conn)
	assert.Equal(t, MessageFullReload, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	s.Inject(filepath.Join(root, "css", "b.css"))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageCSSUpdate, msg.Type)
	assert.Equal(t, "/css/b.css", msg.Target)

	// A stylesheet outside the served root cannot be injected.
	s.Inject(filepath.Join(t.TempDir(), "other.css"))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageFullReload, msg.Type)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return s.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSendWithoutClientsDoesNotBlock(t *testing.T) {
	s := New(Options{Root: t.TempDir()}, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			s.Reload()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reload blocked without a running hub")
	}
}

func TestStartFallsBackToNextPort(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	taken := PortOf(occupied)

	s := New(Options{Root: writeSite(t), Host: "127.0.0.1", Port: taken, PortAttempts: 50}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("server stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	assert.NotEqual(t, taken, s.Port())
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(s.Port()), s.URL())

	resp, err := http.Get(s.URL() + "/about")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestURLUsesLocalhostForWildcardHost(t *testing.T) {
	s := New(Options{Host: "0.0.0.0"}, nil)
	assert.Equal(t, "http://localhost:0", s.URL())
}

func readMessage(t *testing.T, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}
