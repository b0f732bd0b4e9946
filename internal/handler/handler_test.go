package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/sbk2k1/sbk-assistant/internal/ai"
	"github.com/sbk2k1/sbk-assistant/internal/config"
	"github.com/sbk2k1/sbk-assistant/internal/document"
	"github.com/sbk2k1/sbk-assistant/internal/filestore"
	"github.com/sbk2k1/sbk-assistant/internal/model"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/errcode"
	"github.com/sbk2k1/sbk-assistant/internal/pkg/jwt"
	"github.com/sbk2k1/sbk-assistant/internal/service"
	"github.com/sbk2k1/sbk-assistant/internal/vectorindex"
)

// contextChatModel streams the retrieved context back one word at a time.
type contextChatModel struct {
	block   bool
	started chan struct{}
	stopped chan error
}

func (m *contextChatModel) Stream(ctx context.Context, messages []model.Message, onToken ai.TokenFunc) error {
	if m.block {
		close(m.started)
		<-ctx.Done()
		m.stopped <- ctx.Err()
		return ctx.Err()
	}
	system := messages[0].Content
	if i := strings.Index(system, "----------------\n"); i >= 0 {
		system = system[i+len("----------------\n"):]
	}
	for _, w := range strings.Fields(system) {
		if err := onToken(w + " "); err != nil {
			return err
		}
	}
	return nil
}

func (m *contextChatModel) ModelName() string {
	return "context"
}

type testServer struct {
	handler   http.Handler
	uploadDir string
	store     vectorindex.Store
	secret    []byte
}

type serverOptions struct {
	protocol string
	secret   []byte
	maxSize  int64
	chat     ai.IChatModel
}

func setupServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploadDir := filepath.Join(t.TempDir(), "uploads")
	files, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": uploadDir}})
	require.NoError(t, err)
	store, err := vectorindex.NewStore(config.IndexConfig{Type: "file", Data: map[string]interface{}{"dir": filepath.Join(t.TempDir(), "index")}})
	require.NoError(t, err)
	splitter, err := document.NewSplitter(512, 64)
	require.NoError(t, err)
	embedder := ai.NewEmbedder(ai.NewLocalProvider(256), "hash")
	chat := opts.chat
	if chat == nil {
		chat = &contextChatModel{}
	}
	if opts.protocol == "" {
		opts.protocol = config.ProtocolFramed
	}

	ingest := service.NewIngestService(splitter, embedder, store, 2)
	chatSvc := service.NewChatService(store, embedder, chat, nil, service.ChatConfig{
		SystemPrompt:     "You are a test assistant.",
		TopK:             4,
		MaxQuestionChars: 200,
	})
	deps := RouterDeps{
		Health:    NewHealthHandler("SBK Assistant"),
		Upload:    NewUploadHandler(files, ingest, opts.maxSize),
		Chat:      NewChatHandler(chatSvc, ChatOptions{Protocol: opts.protocol, ReturnSources: true, TurnTimeout: 5 * time.Second}),
		JWTSecret: opts.secret,
	}
	engine, err := webapi.NewEngine(
		"/",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			RegisterRoutes(group, deps)
		}),
	)
	require.NoError(t, err)
	return &testServer{handler: engine, uploadDir: uploadDir, store: store, secret: opts.secret}
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (s *testServer) upload(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, uploadRequest(t, name, []byte(content)))
	return rec
}

func TestHealthAlwaysOK(t *testing.T) {
	srv := setupServer(t, serverOptions{})
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"SBK Assistant API running."}`, rec.Body.String())

	// the upload dir has never been created and no index exists
	_, err := os.Stat(srv.uploadDir)
	require.True(t, os.IsNotExist(err))
}

func TestUploadIngests(t *testing.T) {
	srv := setupServer(t, serverOptions{})
	rec := srv.upload(t, "../../etc/project.txt", "Project X uses component Y")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"uploaded and ingested"}`, rec.Body.String())

	raw, err := os.ReadFile(filepath.Join(srv.uploadDir, "project.txt"))
	require.NoError(t, err)
	require.Equal(t, "Project X uses component Y", string(raw))

	idx, ok, err := srv.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, idx.Len())
	require.Equal(t, "project.txt", idx.Entries[0].Chunk.Source)
}

func TestUploadErrors(t *testing.T) {
	srv := setupServer(t, serverOptions{maxSize: 64})

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.upload(t, "blob.bin", "\x00\x01\x02\x03\x04\x05PK\x03\x04")
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = srv.upload(t, "empty.txt", "   \n")
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = srv.upload(t, "big.txt", strings.Repeat("a", 128))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	_, ok, err := srv.store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUploadRequiresToken(t *testing.T) {
	secret := []byte("upload-secret")
	srv := setupServer(t, serverOptions{secret: secret})

	rec := srv.upload(t, "a.txt", "hello")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.GenerateToken("ops", jwt.ScopeUpload, secret, time.Hour)
	require.NoError(t, err)
	req := uploadRequest(t, "a.txt", []byte("hello"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func dialChat(t *testing.T, srv *testServer) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.handler)
	t.Cleanup(ts.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/chat", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readTurn(t *testing.T, conn *websocket.Conn) []Frame {
	t.Helper()
	var frames []Frame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		frames = append(frames, f)
		if f.Type == FrameEnd {
			return frames
		}
	}
}

func TestChatFramedScenario(t *testing.T) {
	srv := setupServer(t, serverOptions{})
	require.Equal(t, http.StatusOK, srv.upload(t, "project.txt", "Project X uses component Y").Code)

	conn := dialChat(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("What does Project X use?")))
	frames := readTurn(t, conn)

	var sb strings.Builder
	var sources []service.Source
	for _, f := range frames {
		switch f.Type {
		case FrameToken:
			sb.WriteString(f.Data)
		case FrameSources:
			sources = f.Sources
		}
	}
	require.Contains(t, sb.String(), "Y")
	require.Len(t, sources, 1)
	require.Equal(t, "project.txt", sources[0].Source)
	require.Equal(t, FrameEnd, frames[len(frames)-1].Type)
}

func TestChatErrorKeepsConnection(t *testing.T) {
	srv := setupServer(t, serverOptions{})
	conn := dialChat(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("   ")))
	frames := readTurn(t, conn)
	require.Len(t, frames, 2)
	require.Equal(t, FrameError, frames[0].Type)
	require.Equal(t, errcode.ErrInvalid, frames[0].Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello?")))
	frames = readTurn(t, conn)
	require.Equal(t, FrameEnd, frames[len(frames)-1].Type)
	for _, f := range frames {
		require.NotEqual(t, FrameError, f.Type)
	}
}

func TestChatRawProtocol(t *testing.T) {
	srv := setupServer(t, serverOptions{protocol: config.ProtocolRaw})
	require.Equal(t, http.StatusOK, srv.upload(t, "project.txt", "Project X uses component Y").Code)

	conn := dialChat(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("What does Project X use?")))
	var tokens []string
	for len(tokens) < 5 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.TextMessage, msgType)
		tokens = append(tokens, string(data))
	}
	require.Equal(t, "Project X uses component Y ", strings.Join(tokens, ""))
}

func TestChatDisconnectCancelsTurn(t *testing.T) {
	chat := &contextChatModel{block: true, started: make(chan struct{}), stopped: make(chan error, 1)}
	srv := setupServer(t, serverOptions{chat: chat})
	conn := dialChat(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("are you there?")))
	select {
	case <-chat.started:
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not start")
	}
	require.NoError(t, conn.Close())
	select {
	case err := <-chat.stopped:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("turn was not cancelled")
	}
}

func TestChatSessionsAreIsolated(t *testing.T) {
	srv := setupServer(t, serverOptions{})
	require.Equal(t, http.StatusOK, srv.upload(t, "a.txt", "alpha fact").Code)

	conns := make([]*websocket.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		conn := dialChat(t, srv)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("alpha?")))
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		frames := readTurn(t, conn)
		require.Equal(t, FrameEnd, frames[len(frames)-1].Type)
		require.Equal(t, FrameSources, frames[len(frames)-2].Type)
	}
}

func TestFormatUploadLimit(t *testing.T) {
	require.Equal(t, "20MB", formatUploadLimit(20*1024*1024))
	require.Equal(t, "64KB", formatUploadLimit(64*1024))
	require.Equal(t, "64B", formatUploadLimit(64))
}
