package container

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	"github.com/anishgillella/serene-sub003/internal/config"
	"github.com/anishgillella/serene-sub003/internal/scheduler"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(dir, "serene.db")
	cfg.VectorStore.Engine = "memory"
	cfg.Storage.Type = "local"
	cfg.Storage.LocalDir = filepath.Join(dir, "files")
	cfg.Rerank.Provider = "none"
	cfg.Embedding.APIKey = "test"
	return cfg
}

func TestBuildContainerLocal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cleaner := NewResourceCleaner()
	c := BuildContainer(dig.New(), localConfig(t), cleaner)
	t.Cleanup(func() { assert.NoError(t, cleaner.Cleanup(context.Background())) })

	err := c.Invoke(func(r *gin.Engine, svc interfaces.ContextService, sweeper *scheduler.SessionSweeper) {
		require.NotNil(t, svc)
		require.NotNil(t, sweeper)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
	require.NoError(t, err)
}

func TestBuildContainerRejectsUnknownEngine(t *testing.T) {
	cfg := localConfig(t)
	cfg.VectorStore.Engine = "faiss"
	cleaner := NewResourceCleaner()
	c := BuildContainer(dig.New(), cfg, cleaner)
	t.Cleanup(func() { _ = cleaner.Cleanup(context.Background()) })

	err := c.Invoke(func(interfaces.SegmentIndex) {})
	assert.Error(t, err)
}

func TestResourceCleanerReverseOrder(t *testing.T) {
	cleaner := NewResourceCleaner()
	var order []int
	cleaner.RegisterFunc(func() { order = append(order, 1) })
	cleaner.Register(func(context.Context) error {
		order = append(order, 2)
		return errors.New("close failed")
	})
	cleaner.RegisterFunc(func() { order = append(order, 3) })

	err := cleaner.Cleanup(context.Background())
	assert.EqualError(t, err, "close failed")
	assert.Equal(t, []int{3, 2, 1}, order)

	assert.NoError(t, cleaner.Cleanup(context.Background()), "cleanups run once")
}
