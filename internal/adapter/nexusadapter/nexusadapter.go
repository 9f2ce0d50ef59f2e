package nexusadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/config"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/metrics"
)

const (
	headerAPIKey = "apikey"

	pathValidate = "/v1/users/validate.json"
	pathMD5      = "/v1/games/%s/mods/md5_search/%s.json"

	maxBodySize = 8 << 20
)

type Cache interface {
	Get(ctx context.Context, md5 string) (*entity.LookupResult, error)
	Save(ctx context.Context, md5 string, res *entity.LookupResult) error
}

type nexusAdapter struct {
	cl    *http.Client
	cfg   *config.NexusConfig
	cache Cache
	log   *slog.Logger
}

// NewNexusAdapter builds the lookup client. cache may be nil.
func NewNexusAdapter(cfg *config.NexusConfig, cache Cache, log *slog.Logger) *nexusAdapter {
	return &nexusAdapter{
		cl:    &http.Client{Timeout: cfg.Timeout},
		cfg:   cfg,
		cache: cache,
		log:   log.With(slog.String("item", "NexusAdapter")),
	}
}

/*
Lookup searches the remote repository by archive MD5.
 1. A cached result is returned without a request.
 2. 404 or an empty result list is common.ErrLookupMiss.
 3. Any other failure (transport, status, body) is common.ErrLookupFailure.
*/
func (a *nexusAdapter) Lookup(ctx context.Context, md5 string) (*entity.LookupResult, error) {
	md5 = strings.ToLower(strings.TrimSpace(md5))
	log := a.log.With(slog.String("md5", md5))

	if a.cache != nil {
		res, err := a.cache.Get(ctx, md5)
		if err == nil {
			metrics.LookupsTotal.WithLabelValues(metrics.ResultCacheHit).Inc()
			log.Debug("Cache hit")

			return res, nil
		}

		if !errors.Is(err, common.ErrNotCached) {
			log.Warn("Cannot read lookup cache", slog.Any("error", err))
		}
	}

	start := time.Now()
	res, err := a.lookup(ctx, md5)
	metrics.LookupDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.LookupsTotal.WithLabelValues(metrics.ResultMatch).Inc()
	case errors.Is(err, common.ErrLookupMiss):
		metrics.LookupsTotal.WithLabelValues(metrics.ResultMiss).Inc()
		log.Info("No match")

		return nil, err
	default:
		metrics.LookupsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		log.Error("Lookup failed", slog.Any("error", err))

		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Save(ctx, md5, res); err != nil {
			log.Warn("Cannot save lookup to cache", slog.Any("error", err))
		}
	}

	return res, nil
}

func (a *nexusAdapter) lookup(ctx context.Context, md5 string) (*entity.LookupResult, error) {
	endpoint := fmt.Sprintf(pathMD5, url.PathEscape(a.cfg.GameDomain), url.PathEscape(md5))

	body, status, err := a.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrLookupFailure, err)
	}

	if status == http.StatusNotFound {
		return nil, common.ErrLookupMiss
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", common.ErrLookupFailure, status)
	}

	return decodeResult(body)
}

// decodeResult accepts either a list of matches, of which the first is used, or a single object.
func decodeResult(body []byte) (*entity.LookupResult, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, common.ErrLookupMiss
	}

	if body[0] == '[' {
		var list []entity.LookupResult
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("%w: cannot decode response: %w", common.ErrLookupFailure, err)
		}

		if len(list) == 0 {
			return nil, common.ErrLookupMiss
		}

		return &list[0], nil
	}

	var res entity.LookupResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: cannot decode response: %w", common.ErrLookupFailure, err)
	}

	if res.Mod.ID == 0 && res.File.ID == 0 {
		return nil, common.ErrLookupMiss
	}

	return &res, nil
}

// Validate checks the configured API key.
func (a *nexusAdapter) Validate(ctx context.Context) error {
	_, status, err := a.get(ctx, pathValidate)
	if err != nil {
		return fmt.Errorf("cannot validate api key: %w", err)
	}

	if status != http.StatusOK {
		return fmt.Errorf("cannot validate api key: status %d", status)
	}

	return nil
}

func (a *nexusAdapter) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(a.cfg.BaseURL, "/")+endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot create request: %w", err)
	}

	req.Header.Set(headerAPIKey, a.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.cl.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("cannot read response: %w", err)
	}

	return body, resp.StatusCode, nil
}
