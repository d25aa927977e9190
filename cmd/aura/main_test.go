package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adeilh/aura/auth"
	"github.com/adeilh/aura/cache/memory"
	"github.com/adeilh/aura/config"
	"github.com/adeilh/aura/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderLines(w io.Writer, v []string) error {
	_, err := io.WriteString(w, strings.Join(v, ",")+"\n")
	return err
}

func TestShowPrintsStaleThenFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.Options{})
	t.Cleanup(func() { _ = store.Close() })
	client, err := query.NewClient(store)
	require.NoError(t, err)
	require.NoError(t, query.Write(ctx, client, query.KeyCampaigns, []string{"spring"}))

	q, err := query.New(ctx, client, query.KeyCampaigns, func(context.Context) ([]string, error) {
		return nil, errors.New("offline")
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, show(ctx, &out, q, renderLines))
	assert.Contains(t, out.String(), "# cached (stale)\nspring\n")
	assert.Contains(t, out.String(), "# refresh failed: offline")
}

func TestShowReturnsErrorWithoutData(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.Options{})
	t.Cleanup(func() { _ = store.Close() })
	client, err := query.NewClient(store)
	require.NoError(t, err)

	q, err := query.New(ctx, client, query.KeyCampaigns, func(context.Context) ([]string, error) {
		return nil, errors.New("offline")
	})
	require.NoError(t, err)

	var out bytes.Buffer
	assert.EqualError(t, show(ctx, &out, q, renderLines), "offline")
}

func TestShowPrintsFresh(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.Options{})
	t.Cleanup(func() { _ = store.Close() })
	client, err := query.NewClient(store)
	require.NoError(t, err)

	q, err := query.New(ctx, client, query.KeyCampaigns, func(context.Context) ([]string, error) {
		return []string{"spring", "summer"}, nil
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, show(ctx, &out, q, renderLines))
	assert.Contains(t, out.String(), "# fresh\nspring,summer\n")
}

func TestParseAttrs(t *testing.T) {
	got, err := parseAttrs([]string{"price=19.90", " niche =beauty", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"price": "19.90", "niche": "beauty", "note": "a=b"}, got)

	_, err = parseAttrs([]string{"missing"})
	assert.Error(t, err)
	_, err = parseAttrs([]string{"=value"})
	assert.Error(t, err)
}

func TestClearKeysKeepsSession(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.Options{})
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Set(ctx, query.KeyCampaigns, []byte(`[]`), 0))
	require.NoError(t, store.Set(ctx, query.AssetsKey("products"), []byte(`[]`), 0))
	require.NoError(t, store.Set(ctx, auth.DefaultSessionKey, []byte(`{}`), 0))

	keys, err := cachedKeys(ctx, store)
	require.NoError(t, err)
	assert.NotContains(t, keys, auth.DefaultSessionKey)

	n, err := clearKeys(ctx, store, keys)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{auth.DefaultSessionKey}, store.Keys())
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "aura.log")
	var console bytes.Buffer
	logger, closeLog, err := newLogger(config.LogConfig{Level: "info", File: path}, &console)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hello", "campaign", "spring")
	require.NoError(t, closeLog())

	assert.Contains(t, console.String(), "msg=hello")
	assert.NotContains(t, console.String(), "hidden")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"campaign":"spring"`)
}

func TestNewLoggerRejectsLevel(t *testing.T) {
	_, _, err := newLogger(config.LogConfig{Level: "loud"}, io.Discard)
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	root, _ := newRootCmd()
	for _, path := range [][]string{
		{"serve"}, {"login"}, {"whoami"},
		{"campaigns", "create"}, {"assets", "add"},
		{"content", "delete"}, {"generate", "static-ad"},
		{"brain", "upload"}, {"cache", "clear"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
