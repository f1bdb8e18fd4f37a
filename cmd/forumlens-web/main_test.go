package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/config"
)

func TestRun_ServesAndShutsDown(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Storage.DataPath = filepath.Join(dir, "data")
	cfg.Backup.Path = filepath.Join(dir, "backups")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, zap.NewNop(), func(addr string) { ready <- addr })
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start in time")
	}

	resp, err := http.Get("http://" + addr + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/api/backup/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	_, err = os.Stat(cfg.Storage.DSN())
	assert.NoError(t, err, "database file is created under the data path")
}

func TestRun_BadSeedTags(t *testing.T) {
	dir := t.TempDir()
	seeds := filepath.Join(dir, "seeds.yaml")
	require.NoError(t, os.WriteFile(seeds, []byte("clusters: [not, a, map]\n"), 0o600))

	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Storage.DataPath = dir
	cfg.Backup.Path = filepath.Join(dir, "backups")
	cfg.Ingest.SeedTagsPath = seeds

	err := run(context.Background(), cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}
