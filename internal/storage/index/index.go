package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/config"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/metrics"
	"github.com/jgivc/dlmanager/internal/workers"
	"github.com/spf13/afero"
)

type FSAdapter interface {
	ToEntry(archive entity.ArchiveFile) (*entity.DownloadEntry, error)
}

type job struct {
	slot    int
	archive entity.ArchiveFile
}

type indexStorage struct {
	running    atomic.Bool
	fs         afero.Fs
	adapter    FSAdapter
	cfg        *config.IndexerConfig
	extensions map[string]struct{}
	log        *slog.Logger
}

func NewIndexStorage(adapter FSAdapter, cfg *config.IndexerConfig, log *slog.Logger) *indexStorage {
	return NewIndexStorageWithFS(afero.NewOsFs(), adapter, cfg, log)
}

func NewIndexStorageWithFS(fs afero.Fs, adapter FSAdapter, cfg *config.IndexerConfig, log *slog.Logger) *indexStorage {
	extensions := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}

	return &indexStorage{
		fs:         fs,
		adapter:    adapter,
		cfg:        cfg,
		extensions: extensions,
		log:        log.With(slog.String("item", "IndexStorage")),
	}
}

func (i *indexStorage) Dir() string {
	return i.cfg.DownloadsDir
}

// Scan lists the downloads directory once and builds one entry per archive on a bounded pool.
// Files that fail are logged and left out; an unreadable directory yields an empty result.
func (i *indexStorage) Scan(ctx context.Context) ([]entity.DownloadEntry, error) {
	if !i.running.CompareAndSwap(false, true) {
		return nil, common.ErrRefreshAlreadyStarted
	}
	defer i.running.Store(false)

	metrics.ScanIsRunning.Set(1)
	defer metrics.ScanIsRunning.Set(0)
	metrics.ScanRunsTotal.Inc()

	start := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	archives := i.collectArchives()
	if len(archives) == 0 {
		return []entity.DownloadEntry{}, nil
	}

	numWorkers := min(workers.ForScan(i.cfg.Workers), len(archives))
	metrics.ScanWorkers.Set(float64(numWorkers))

	in := make(chan job, len(archives))
	for n, archive := range archives {
		in <- job{slot: n, archive: archive}
	}
	close(in)

	// every job owns its slot, so workers never share a write target
	slots := make([]*entity.DownloadEntry, len(archives))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for n := 0; n < numWorkers; n++ {
		go i.worker(ctx, n, in, slots, &wg)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	entries := make([]entity.DownloadEntry, 0, len(slots))
	for _, entry := range slots {
		if entry == nil {
			metrics.ScanFilesTotal.WithLabelValues(metrics.ResultDropped).Inc()

			continue
		}

		if entry.HasMeta() {
			metrics.ScanFilesTotal.WithLabelValues(metrics.ResultEntry).Inc()
		} else {
			metrics.ScanFilesTotal.WithLabelValues(metrics.ResultStub).Inc()
		}

		entries = append(entries, *entry)
	}

	i.log.Info("Scan done",
		slog.String("dir", i.cfg.DownloadsDir),
		slog.Int("archives", len(archives)),
		slog.Int("entries", len(entries)),
		slog.Int("workers", numWorkers),
		slog.Duration("took", time.Since(start)))

	return entries, nil
}

func (i *indexStorage) worker(ctx context.Context, n int, in chan job, slots []*entity.DownloadEntry, wg *sync.WaitGroup) {
	defer wg.Done()

	log := i.log.With(slog.Int("worker_id", n))
	log.Debug("Started")

	for j := range in {
		select {
		case <-ctx.Done():
			log.Info("Interrupted")

			return
		default:
		}

		slots[j.slot] = i.build(log, j.archive)
	}

	log.Debug("Done")
}

func (i *indexStorage) build(log *slog.Logger, archive entity.ArchiveFile) (entry *entity.DownloadEntry) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while building entry", slog.String("path", archive.Path), slog.Any("panic", r))
			entry = nil
		}
	}()

	entry, err := i.adapter.ToEntry(archive)
	if err != nil {
		log.Error("Cannot build entry", slog.String("path", archive.Path), slog.Any("error", err))

		return nil
	}

	return entry
}

// collectArchives captures the stat of every candidate at enumeration time.
func (i *indexStorage) collectArchives() []entity.ArchiveFile {
	infos, err := afero.ReadDir(i.fs, i.cfg.DownloadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			i.log.Warn("Downloads directory does not exist", slog.String("dir", i.cfg.DownloadsDir))
		} else {
			i.log.Error("Cannot read downloads directory", slog.String("dir", i.cfg.DownloadsDir), slog.Any("error", err))
		}

		return nil
	}

	archives := make([]entity.ArchiveFile, 0, len(infos))
	for _, info := range infos {
		if !i.isArchive(info) {
			continue
		}

		archives = append(archives, entity.ArchiveFile{
			Path:    filepath.Join(i.cfg.DownloadsDir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return archives
}

func (i *indexStorage) isArchive(info os.FileInfo) bool {
	if !info.Mode().IsRegular() {
		return false
	}

	name := info.Name()
	ext := filepath.Ext(name)
	if _, ok := i.extensions[strings.ToLower(ext)]; !ok {
		return false
	}

	// in-progress downloads
	return !strings.HasSuffix(strings.TrimSuffix(name, ext), i.cfg.UnfinishedSuffix)
}
