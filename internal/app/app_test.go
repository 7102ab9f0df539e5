package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EBMS/internal/config"
	"EBMS/internal/usecase"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "ebms.db")},
		Server:   config.ServerConfig{Listen: "127.0.0.1:0"},
		PubMed: config.PubMedConfig{
			BaseURL:  "http://127.0.0.1:1",
			MaxTries: 1,
			Sources:  []string{"repo"},
			RepoBase: t.TempDir(),
		},
		Cache: config.CacheConfig{TermsTTL: time.Minute},
	}
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	application, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })
	require.NoError(t, application.Migrate(context.Background()))
	return application
}

func TestSeedInstallsCatalog(t *testing.T) {
	t.Parallel()

	application := newTestApp(t)
	ctx := context.Background()
	doc := `{
		"boards": [
			{"name": "Adult Treatment", "topics": ["Breast Cancer", "Lung Cancer"], "notList": ["0404511"]},
			{"name": "Pediatric Treatment", "topics": ["Neuroblastoma"]}
		],
		"users": ["librarian", "Dr. Reviewer"]
	}`

	summary, err := application.Seed(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, SeedSummary{Boards: 2, Topics: 3, Users: 2, Journals: 1}, summary)

	again, err := application.Seed(ctx, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, summary, again)

	topics, err := application.repo.Topics(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, topics, 3)

	_, err = application.Seed(ctx, strings.NewReader("{"))
	assert.Error(t, err)
}

func TestHandlerServesHealth(t *testing.T) {
	t.Parallel()

	application := newTestApp(t)
	res := httptest.NewRecorder()
	application.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestImportFromLocalRepository(t *testing.T) {
	t.Parallel()

	application := newTestApp(t)
	ctx := context.Background()
	_, err := application.Seed(ctx, strings.NewReader(`{"boards":[{"name":"Adult Treatment","topics":["Breast Cancer"]}],"users":["librarian"]}`))
	require.NoError(t, err)

	batch, err := application.Importer.Run(ctx, usecase.ImportRequest{PMIDs: []string{"123"}, TopicID: 1, UserID: 1})
	require.NoError(t, err)
	require.Len(t, batch.Actions, 1)
	assert.Equal(t, "not found at NLM", batch.Actions[0].Message)
}

func TestServeStopsWithContext(t *testing.T) {
	t.Parallel()

	application := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
