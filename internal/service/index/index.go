package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/metrics"
	"github.com/jgivc/dlmanager/internal/service/reconcile"
)

type DownloadStorage interface {
	Scan(ctx context.Context) ([]entity.DownloadEntry, error)
	Dir() string
}

type DownloadService interface {
	Delete(entry entity.DownloadEntry) error
	BulkHide(entries []entity.DownloadEntry) (entity.BulkReport, []entity.DownloadEntry)
	BulkInstall(ctx context.Context, entries []entity.DownloadEntry) (entity.BulkReport, []entity.DownloadEntry)
	Requery(ctx context.Context, entry entity.DownloadEntry, md5 string) (entity.DownloadEntry, error)
}

// Snapshot is one immutable view of the collection. Callers must not modify the slices.
type Snapshot struct {
	Entries      []entity.DownloadEntry
	NotInstalled []entity.DownloadEntry
	ScannedAt    time.Time

	byPath map[string]int
	byID   map[string]int
}

func newSnapshot(entries []entity.DownloadEntry, scannedAt time.Time) *Snapshot {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RawFilePath < entries[j].RawFilePath
	})

	s := &Snapshot{
		Entries:      entries,
		NotInstalled: reconcile.NotInstalledEntries(entries),
		ScannedAt:    scannedAt,
		byPath:       make(map[string]int, len(entries)),
		byID:         make(map[string]int, len(entries)),
	}

	var size int64
	for n, e := range entries {
		s.byPath[e.RawFilePath] = n
		s.byID[e.ID] = n
		size += e.FileSize
	}

	metrics.CollectionEntries.Set(float64(len(entries)))
	metrics.CollectionBytes.Set(float64(size))

	return s
}

// IndexerService owns the collection. Readers load the current snapshot without locking;
// refresh and mutations are serialised and publish a new snapshot.
type IndexerService struct {
	store      DownloadStorage
	svc        DownloadService
	mu         sync.Mutex
	refreshing atomic.Bool
	snap       atomic.Pointer[Snapshot]
	log        *slog.Logger
}

func NewIndexService(store DownloadStorage, svc DownloadService, log *slog.Logger) *IndexerService {
	i := &IndexerService{
		store: store,
		svc:   svc,
		log:   log.With(slog.String("item", "IndexService")),
	}

	i.snap.Store(newSnapshot(nil, time.Time{}))

	return i
}

// Refresh rescans the directory and replaces the collection wholesale.
// A refresh already in progress makes it return common.ErrRefreshAlreadyStarted.
func (i *IndexerService) Refresh(ctx context.Context) error {
	if !i.refreshing.CompareAndSwap(false, true) {
		return common.ErrRefreshAlreadyStarted
	}
	defer i.refreshing.Store(false)

	i.mu.Lock()
	defer i.mu.Unlock()

	entries, err := i.store.Scan(ctx)
	if err != nil {
		i.log.Error("Cannot scan", slog.Any("error", err))

		return fmt.Errorf("cannot scan download store: %w", err)
	}

	i.snap.Store(newSnapshot(entries, time.Now()))
	i.log.Info("Collection replaced", slog.Int("count", len(entries)))

	return nil
}

func (i *IndexerService) Snapshot() *Snapshot {
	return i.snap.Load()
}

func (i *IndexerService) Dir() string {
	return i.store.Dir()
}

func (i *IndexerService) Data() []entity.DownloadEntry {
	return i.Snapshot().Entries
}

// DataNotInstalled lists entries without the installed flag.
func (i *IndexerService) DataNotInstalled() []entity.DownloadEntry {
	return i.Snapshot().NotInstalled
}

func (i *IndexerService) Duplicates() []entity.DownloadEntry {
	return reconcile.Duplicates(i.Data())
}

func (i *IndexerService) DuplicateGroups() []entity.DuplicateGroup {
	return reconcile.Groups(i.Data())
}

// NotInstalled lists updates newer than what is installed for the same mod.
func (i *IndexerService) NotInstalled() []entity.DownloadEntry {
	return reconcile.NotInstalled(i.Data())
}

func (i *IndexerService) EntryByID(id string) (entity.DownloadEntry, bool) {
	s := i.Snapshot()

	n, ok := s.byID[id]
	if !ok {
		return entity.DownloadEntry{}, false
	}

	return s.Entries[n], true
}

func (i *IndexerService) EntryByPath(path string) (entity.DownloadEntry, bool) {
	s := i.Snapshot()

	n, ok := s.byPath[path]
	if !ok {
		return entity.DownloadEntry{}, false
	}

	return s.Entries[n], true
}

// Delete removes the entry's files and drops it from the collection.
// It returns false without error when the entry is not in the collection. When only the
// sidecar could not be removed the entry is dropped anyway and the error is returned with true.
func (i *IndexerService) Delete(entry entity.DownloadEntry) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	current, ok := i.EntryByPath(entry.RawFilePath)
	if !ok {
		i.log.Debug("Entry not found", slog.String("path", entry.RawFilePath))

		return false, nil
	}

	if err := i.svc.Delete(current); err != nil {
		if !errors.Is(err, common.ErrMetaNotRemoved) {
			return false, fmt.Errorf("cannot delete %s: %w", entry.RawFilePath, err)
		}

		// the archive is gone, so the entry must go too
		i.publish(nil, []string{current.RawFilePath})

		return true, fmt.Errorf("cannot delete %s: %w", entry.RawFilePath, err)
	}

	i.publish(nil, []string{current.RawFilePath})

	return true, nil
}

// BulkHide hides the entries and splices the re-derived ones into the collection.
func (i *IndexerService) BulkHide(entries []entity.DownloadEntry) entity.BulkReport {
	i.mu.Lock()
	defer i.mu.Unlock()

	known, missing := i.resolve(entries)

	report, updated := i.svc.BulkHide(known)
	addMissing(&report, missing)

	i.publish(updated, nil)

	return report
}

// BulkInstall installs the entries one by one and splices the hidden results into the collection.
func (i *IndexerService) BulkInstall(ctx context.Context, entries []entity.DownloadEntry) entity.BulkReport {
	i.mu.Lock()
	defer i.mu.Unlock()

	known, missing := i.resolve(entries)

	report, updated := i.svc.BulkInstall(ctx, known)
	addMissing(&report, missing)

	i.publish(updated, nil)

	return report
}

// Requery identifies the entry by hash. On any failure nil is returned and the collection is unchanged.
func (i *IndexerService) Requery(ctx context.Context, entry entity.DownloadEntry, md5 string) (*entity.DownloadEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	current, ok := i.EntryByPath(entry.RawFilePath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrEntryNotFound, entry.RawFilePath)
	}

	updated, err := i.svc.Requery(ctx, current, md5)
	if err != nil {
		i.log.Info("Requery gave no result", slog.String("path", current.RawFilePath), slog.Any("error", err))

		return nil, err
	}

	i.publish([]entity.DownloadEntry{updated}, nil)

	return &updated, nil
}

// resolve maps the given entries to their current versions in the collection.
func (i *IndexerService) resolve(entries []entity.DownloadEntry) ([]entity.DownloadEntry, []string) {
	var (
		known   = make([]entity.DownloadEntry, 0, len(entries))
		missing []string
		seen    = make(map[string]struct{}, len(entries))
	)

	for _, e := range entries {
		if _, dup := seen[e.RawFilePath]; dup {
			continue
		}
		seen[e.RawFilePath] = struct{}{}

		current, ok := i.EntryByPath(e.RawFilePath)
		if !ok {
			missing = append(missing, e.RawFilePath)

			continue
		}

		known = append(known, current)
	}

	return known, missing
}

// publish stores a copy of the current snapshot with entries replaced by path and paths removed.
// Must be called with mu held.
func (i *IndexerService) publish(replaced []entity.DownloadEntry, removed []string) {
	if len(replaced) == 0 && len(removed) == 0 {
		return
	}

	old := i.Snapshot()

	drop := make(map[string]struct{}, len(removed))
	for _, path := range removed {
		drop[path] = struct{}{}
	}

	swap := make(map[string]entity.DownloadEntry, len(replaced))
	for _, e := range replaced {
		swap[e.RawFilePath] = e
	}

	entries := make([]entity.DownloadEntry, 0, len(old.Entries))
	for _, e := range old.Entries {
		if _, ok := drop[e.RawFilePath]; ok {
			continue
		}

		if updated, ok := swap[e.RawFilePath]; ok {
			e = updated
		}

		entries = append(entries, e)
	}

	i.snap.Store(newSnapshot(entries, old.ScannedAt))
}

func addMissing(report *entity.BulkReport, missing []string) {
	if len(missing) == 0 {
		return
	}

	if report.Errors == nil {
		report.Errors = make(map[string]string)
	}

	for _, path := range missing {
		report.Failed++
		report.Errors[path] = common.ErrEntryNotFound.Error()
	}
}
