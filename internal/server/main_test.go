package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"postboard/internal/config"
	"postboard/internal/database"
	"postboard/internal/resettoken"
	"postboard/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingMailer keeps the last body mailed to each address.
type recordingMailer struct {
	mu   sync.Mutex
	last map[string]string
}

func (m *recordingMailer) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[to] = body
	return nil
}

type testEnv struct {
	server *Server
	app    *fiber.App
	mailer *recordingMailer
	resets *resettoken.MemoryStore
	cfg    *config.Config
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		JWTSecret:       "test-secret-that-is-long-enough-for-hs256",
		Port:            "0",
		Env:             "test",
		UploadDir:       t.TempDir(),
		MaxUploadSizeMB: 1,
		MediaBackend:    "local",
		ResetTokenStore: "memory",
		AllowedOrigins:  "http://localhost:5173",
	}

	s, err := NewServerWithDeps(context.Background(), cfg, db, nil)
	require.NoError(t, err)

	// Swap in a reset issuer whose mail and store the test can read.
	env := &testEnv{
		server: s,
		mailer: &recordingMailer{last: map[string]string{}},
		resets: resettoken.NewMemoryStore(),
		cfg:    cfg,
	}
	s.resets = service.NewResetTokenIssuer(s.userRepo, env.resets, s.tokens, env.mailer)
	s.credentials = service.NewCredentialService(s.userRepo, s.media, s.tokens, s.resets)

	env.app = s.NewApp()
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func jsonRequest(method, target, token string, body any) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func multipartRequest(t *testing.T, method, target, token string, fields map[string]string, fileField string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, "upload.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
