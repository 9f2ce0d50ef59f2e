package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/entity"
)

const (
	maxBodySize = 1 << 20
)

var (
	idRegexp  = regexp.MustCompile(`^[a-f\d]{40}$`)
	md5Regexp = regexp.MustCompile(`^[a-fA-F\d]{32}$`)
)

type RefreshService interface {
	Refresh(ctx context.Context) error
}

type QueryService interface {
	Data() []entity.DownloadEntry
	DataNotInstalled() []entity.DownloadEntry
	Duplicates() []entity.DownloadEntry
	DuplicateGroups() []entity.DuplicateGroup
	NotInstalled() []entity.DownloadEntry
	EntryByID(id string) (entity.DownloadEntry, bool)
}

type MutationService interface {
	QueryService
	Delete(entry entity.DownloadEntry) (bool, error)
	BulkHide(entries []entity.DownloadEntry) entity.BulkReport
	BulkInstall(ctx context.Context, entries []entity.DownloadEntry) entity.BulkReport
	Requery(ctx context.Context, entry entity.DownloadEntry, md5 string) (*entity.DownloadEntry, error)
}

type HashService interface {
	Hash(ctx context.Context, entry entity.DownloadEntry, progress func(percent int)) (entity.HashResult, error)
}

type StatsService interface {
	Compute(entries []entity.DownloadEntry) entity.Stats
}

type CacheService interface {
	Clear(ctx context.Context) (int64, error)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type requeryRequest struct {
	MD5 string `json:"md5"`
}

func NewRefreshHandler(srv RefreshService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "RefreshHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		if err := srv.Refresh(r.Context()); err != nil {
			switch {
			case errors.Is(err, common.ErrRefreshAlreadyStarted):
				http.Error(w, "Refresh has already started", http.StatusConflict)
			default:
				log.Error("Cannot refresh", slog.Any("error", err))
				http.Error(w, "Cannot refresh", http.StatusInternalServerError)
			}

			return
		}

		w.Write([]byte("done"))
	}
}

// NewListHandler serves one of the collection views as JSON.
func NewListHandler(list func() []entity.DownloadEntry, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ListHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, list())
	}
}

func NewGroupsHandler(srv QueryService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "GroupsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, srv.DuplicateGroups())
	}
}

func NewStatsHandler(query QueryService, srv StatsService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, srv.Compute(query.Data()))
	}
}

func NewDeleteHandler(srv MutationService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DeleteHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := entryFromPath(w, r, srv)
		if !ok {
			return
		}

		deleted, err := srv.Delete(entry)
		if err != nil {
			log.Error("Cannot delete", slog.String("path", entry.RawFilePath), slog.Any("error", err))
			http.Error(w, "Cannot delete", http.StatusInternalServerError)

			return
		}

		if !deleted {
			http.Error(w, "Cannot find entry", http.StatusNotFound)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func NewHideHandler(srv MutationService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "HideHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		entries, ok := entriesFromBody(w, r, srv)
		if !ok {
			return
		}

		writeJSON(w, log, srv.BulkHide(entries))
	}
}

func NewInstallHandler(srv MutationService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "InstallHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		entries, ok := entriesFromBody(w, r, srv)
		if !ok {
			return
		}

		writeJSON(w, log, srv.BulkInstall(r.Context(), entries))
	}
}

// NewRequeryHandler identifies one entry. Without an md5 in the body the archive is hashed first.
func NewRequeryHandler(srv MutationService, hash HashService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "RequeryHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		entry, ok := entryFromPath(w, r, srv)
		if !ok {
			return
		}

		var req requeryRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "Bad request", http.StatusBadRequest)

				return
			}
		}

		md5 := strings.TrimSpace(req.MD5)
		if md5 != "" && !md5Regexp.MatchString(md5) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if md5 == "" {
			res, err := hash.Hash(r.Context(), entry, func(percent int) {
				log.Debug("Hashing", slog.String("path", entry.RawFilePath), slog.Int("percent", percent))
			})
			if err != nil {
				log.Error("Cannot hash", slog.String("path", entry.RawFilePath), slog.Any("error", err))
				http.Error(w, "Cannot hash archive", http.StatusInternalServerError)

				return
			}

			md5 = res.MD5
		}

		updated, err := srv.Requery(r.Context(), entry, md5)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrLookupMiss), errors.Is(err, common.ErrEntryNotFound), errors.Is(err, common.ErrArchiveVanished):
				http.Error(w, "No match", http.StatusNotFound)
			case errors.Is(err, common.ErrLookupFailure):
				http.Error(w, "Lookup failed", http.StatusBadGateway)
			default:
				http.Error(w, "Cannot requery", http.StatusInternalServerError)
			}

			return
		}

		writeJSON(w, log, updated)
	}
}

func NewClearCacheHandler(srv CacheService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ClearCacheHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		count, err := srv.Clear(r.Context())
		if err != nil {
			log.Error("Cannot clear cache", slog.Any("error", err))
			http.Error(w, "Cannot clear cache", http.StatusInternalServerError)

			return
		}

		writeJSON(w, log, map[string]int64{"deleted": count})
	}
}

func entryFromPath(w http.ResponseWriter, r *http.Request, srv QueryService) (entity.DownloadEntry, bool) {
	id := r.PathValue("id")
	if !idRegexp.MatchString(id) {
		http.Error(w, "Bad request", http.StatusBadRequest)

		return entity.DownloadEntry{}, false
	}

	entry, ok := srv.EntryByID(id)
	if !ok {
		http.Error(w, "Cannot find entry", http.StatusNotFound)

		return entity.DownloadEntry{}, false
	}

	return entry, true
}

// entriesFromBody resolves {"ids": [...]}. Unknown ids are passed on as bare paths so the
// bulk report counts them as failures.
func entriesFromBody(w http.ResponseWriter, r *http.Request, srv QueryService) ([]entity.DownloadEntry, bool) {
	var req idsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)

		return nil, false
	}

	entries := make([]entity.DownloadEntry, 0, len(req.IDs))
	for _, id := range req.IDs {
		if !idRegexp.MatchString(id) {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return nil, false
		}

		entry, ok := srv.EntryByID(id)
		if !ok {
			entry = entity.DownloadEntry{ID: id, RawFilePath: id}
		}

		entries = append(entries, entry)
	}

	return entries, true
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Cannot encode response", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
