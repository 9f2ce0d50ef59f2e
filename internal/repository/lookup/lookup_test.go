package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testTTL = time.Hour

func newRepository(t *testing.T) (*lookupRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cl := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cl.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	return NewLookupRepository(cl, testTTL, log), mr
}

func TestGetKey(t *testing.T) {
	require.Equal(t, "lk:abc", getKey(KeyLookup, normalize("  ABC ")))
	require.Equal(t, "lk:*", getKey(KeyLookup, "*"))
}

func TestGet(t *testing.T) {
	testCases := []struct {
		name        string
		stored      *string
		md5         string
		expectError error
		expectName  string
	}{
		{
			name:        "Scenario 1. Missing key",
			md5:         "0123456789abcdef0123456789abcdef",
			expectError: common.ErrNotCached,
		},
		{
			name:        "Scenario 2. Cached value is not JSON",
			stored:      ptr("not json"),
			md5:         "0123456789abcdef0123456789abcdef",
			expectError: common.ErrNotCached,
		},
		{
			name:       "Scenario 3. Cached value",
			stored:     ptr(`{"mod":{"mod_id":42,"name":"Mod B"},"file_details":{"file_id":7,"name":"ModB"}}`),
			md5:        " 0123456789ABCDEF0123456789ABCDEF",
			expectName: "ModB",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mr := newRepository(t)

			if tc.stored != nil {
				require.NoError(t, mr.Set("lk:0123456789abcdef0123456789abcdef", *tc.stored))
			}

			res, err := repo.Get(context.Background(), tc.md5)
			if tc.expectError != nil {
				require.True(t, errors.Is(err, tc.expectError))
				require.Nil(t, res)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expectName, res.File.Name)
			require.Equal(t, int64(42), res.Mod.ID)
		})
	}
}

func TestGetConnectionError(t *testing.T) {
	repo, mr := newRepository(t)
	mr.Close()

	_, err := repo.Get(context.Background(), "abc")
	require.Error(t, err)
	require.False(t, errors.Is(err, common.ErrNotCached))
}

func TestSave(t *testing.T) {
	repo, mr := newRepository(t)
	ctx := context.Background()

	res := &entity.LookupResult{
		Mod:  entity.LookupMod{ID: 42, Name: "Mod B"},
		File: entity.LookupFile{ID: 7, Name: "ModB", Version: "1.0"},
	}

	require.NoError(t, repo.Save(ctx, "ABCDEF", res))

	key := "lk:abcdef"
	require.True(t, mr.Exists(key))
	require.Equal(t, testTTL, mr.TTL(key))

	got, err := repo.Get(ctx, "abcdef")
	require.NoError(t, err)
	require.Equal(t, res, got)

	mr.FastForward(testTTL + time.Second)

	_, err = repo.Get(ctx, "abcdef")
	require.True(t, errors.Is(err, common.ErrNotCached))
}

func TestClear(t *testing.T) {
	testCases := []struct {
		name        string
		lookups     int
		expectCount int64
	}{
		{
			name: "Scenario 1. Empty cache",
		},
		{
			name:        "Scenario 2. Few keys",
			lookups:     3,
			expectCount: 3,
		},
		{
			name:        "Scenario 3. More keys than one scan page",
			lookups:     ScanCount + 250,
			expectCount: ScanCount + 250,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mr := newRepository(t)

			for i := 0; i < tc.lookups; i++ {
				require.NoError(t, mr.Set(fmt.Sprintf("lk:%032x", i), "{}"))
			}
			require.NoError(t, mr.Set("other:key", "stay"))

			count, err := repo.Clear(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.expectCount, count)
			require.Equal(t, []string{"other:key"}, mr.Keys())
		})
	}
}

func TestPing(t *testing.T) {
	repo, mr := newRepository(t)
	require.NoError(t, repo.Ping(context.Background()))

	mr.Close()
	require.Error(t, repo.Ping(context.Background()))
}

func ptr(s string) *string {
	return &s
}
