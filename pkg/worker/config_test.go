package worker

import (
	"context"
	"io"
	"testing"

	"github.com/cuemby/jobflow/pkg/jobstore/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSharedFile(t *testing.T, store *local.Store, name, content string) {
	t.Helper()
	w, err := store.WriteSharedFileStream(context.Background(), name)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestLoadConfigParsesAttributes(t *testing.T) {
	store, err := local.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	writeSharedFile(t, store, "config.xml", `<config try_count="3" job_time="60" default_memory="1024" default_cpu="2" log_level="debug" stats="1"/>`)

	cfg, err := LoadConfig(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TryCount)
	assert.Equal(t, 60.0, cfg.JobTimeSecs)
	assert.Equal(t, int64(1024), cfg.DefaultMemory)
	assert.Equal(t, int64(2), cfg.DefaultCPU)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.StatsEnabled())
}

func TestLoadConfigStatsDisabledWhenAttributeAbsent(t *testing.T) {
	store, err := local.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	writeSharedFile(t, store, "config.xml", `<config try_count="1" job_time="0" default_memory="512" default_cpu="1" log_level="info"/>`)

	cfg, err := LoadConfig(context.Background(), store)
	require.NoError(t, err)
	assert.False(t, cfg.StatsEnabled())
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	store, err := local.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = LoadConfig(context.Background(), store)
	assert.Error(t, err)
}
