package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order_notifier/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNotifySettingsMissing(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetNotifySettings(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotifySettingsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.UpsertNotifySettings(ctx, model.NotifySettings{
		Enabled:     true,
		FromName:    " Kitchen ",
		FromAddress: "kitchen@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", saved.FromName)

	_, err = s.UpsertNotifySettings(ctx, model.NotifySettings{Enabled: false, BccAddress: "owner@example.com"})
	require.NoError(t, err)

	got, ok, err := s.GetNotifySettings(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.NotifySettings{Enabled: false, BccAddress: "owner@example.com"}, got)
}

func TestNotifySettingsRejectsInvalidAddress(t *testing.T) {
	s := openTestStore(t)
	_, err := s.UpsertNotifySettings(context.Background(), model.NotifySettings{Enabled: true, BccAddress: "nope"})
	require.Error(t, err)

	_, ok, err := s.GetNotifySettings(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReopenKeepsSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.UpsertNotifySettings(ctx, model.NotifySettings{Enabled: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, ok, err := s.GetNotifySettings(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Enabled)
}

func TestNotifySettingsHistoryNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertNotifySettings(ctx, model.NotifySettings{Enabled: true, FromName: "One"})
	require.NoError(t, err)
	_, err = s.UpsertNotifySettings(ctx, model.NotifySettings{Enabled: false, FromName: "Two"})
	require.NoError(t, err)
	_, err = s.UpsertNotifySettings(ctx, model.NotifySettings{Enabled: false, BccAddress: "bad"})
	require.Error(t, err)

	hist, err := s.NotifySettingsHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "Two", hist[0].Settings.FromName)
	assert.Equal(t, "One", hist[1].Settings.FromName)
	assert.GreaterOrEqual(t, hist[0].ChangedAt, hist[1].ChangedAt)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	var version int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, len(migrations), version)
}
