package nexusadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/config"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/stretchr/testify/require"
)

const (
	testKey  = "secret"
	testGame = "skyrimspecialedition"
	testMD5  = "0123456789abcdef0123456789abcdef"

	matchBody = `{"mod":{"mod_id":42,"name":"Foo","category_id":3,"user":{"member_id":9,"name":"bob"}},` +
		`"file_details":{"file_id":7,"name":"Foo Main","version":"3.0","category_id":1}}`
)

func newAdapter(t *testing.T, handler http.HandlerFunc, cache Cache) *nexusAdapter {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.NexusConfig{
		APIKey:     testKey,
		BaseURL:    srv.URL,
		GameDomain: testGame,
		Timeout:    5 * time.Second,
	}

	return NewNexusAdapter(cfg, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLookup(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		body        string
		expectError error
		expectModID int64
	}{
		{name: "Scenario 1: Object response", status: http.StatusOK, body: matchBody, expectModID: 42},
		{name: "Scenario 2: List response uses the first element", status: http.StatusOK, body: "[" + matchBody + `,{"mod":{"mod_id":1}}]`, expectModID: 42},
		{name: "Scenario 3: Empty list is a miss", status: http.StatusOK, body: "[]", expectError: common.ErrLookupMiss},
		{name: "Scenario 4: Not found is a miss", status: http.StatusNotFound, body: `{"message":"No file found"}`, expectError: common.ErrLookupMiss},
		{name: "Scenario 5: Server error is a failure", status: http.StatusInternalServerError, body: "oops", expectError: common.ErrLookupFailure},
		{name: "Scenario 6: Garbage body is a failure", status: http.StatusOK, body: "{not json", expectError: common.ErrLookupFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/games/"+testGame+"/mods/md5_search/"+testMD5+".json", r.URL.Path)
				require.Equal(t, testKey, r.Header.Get(headerAPIKey))

				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, nil)

			res, err := a.Lookup(context.Background(), testMD5)
			if tc.expectError != nil {
				require.True(t, errors.Is(err, tc.expectError), "got %v", err)
				require.Nil(t, res)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expectModID, res.Mod.ID)
			require.Equal(t, "Foo", res.Mod.Name)
			require.Equal(t, int64(7), res.File.ID)
			require.Equal(t, "3.0", res.File.Version)
			require.Equal(t, "bob", res.Mod.User.Name)
		})
	}
}

func TestLookupTransportFailure(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {}, nil)
	a.cfg.BaseURL = "http://127.0.0.1:1"

	_, err := a.Lookup(context.Background(), testMD5)
	require.True(t, errors.Is(err, common.ErrLookupFailure))
}

type memCache struct {
	mu    sync.Mutex
	items map[string]*entity.LookupResult
}

func (c *memCache) Get(_ context.Context, md5 string) (*entity.LookupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.items[md5]
	if !ok {
		return nil, common.ErrNotCached
	}

	return res, nil
}

func (c *memCache) Save(_ context.Context, md5 string, res *entity.LookupResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[md5] = res

	return nil
}

func TestLookupCache(t *testing.T) {
	var calls int
	cache := &memCache{items: make(map[string]*entity.LookupResult)}

	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(matchBody))
	}, cache)

	for n := 0; n < 3; n++ {
		res, err := a.Lookup(context.Background(), testMD5)
		require.NoError(t, err)
		require.Equal(t, int64(42), res.Mod.ID)
	}

	require.Equal(t, 1, calls)
	require.Contains(t, cache.items, testMD5)
}

func TestValidate(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathValidate, r.URL.Path)

		if r.Header.Get(headerAPIKey) != testKey {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		_, _ = w.Write([]byte(`{"name":"bob"}`))
	}, nil)

	require.NoError(t, a.Validate(context.Background()))

	a.cfg.APIKey = "wrong"
	require.Error(t, a.Validate(context.Background()))
}
