package hash

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/metrics"
	"github.com/spf13/afero"
)

const (
	defaultChunkSize = 64 * 1024
	queueSize        = 16
)

var ErrWorkerStopped = errors.New("hash worker is not running")

type job struct {
	ctx      context.Context
	entry    entity.DownloadEntry
	progress func(percent int)
	result   chan outcome
}

type outcome struct {
	res entity.HashResult
	err error
}

// hashService owns one background goroutine, so hashing never competes with a scan.
type hashService struct {
	fs        afero.Fs
	chunkSize int
	jobs      chan job
	done      chan struct{}
	running   atomic.Bool
	log       *slog.Logger
}

func NewHashService(chunkSize int, log *slog.Logger) *hashService {
	return NewHashServiceWithFS(afero.NewOsFs(), chunkSize, log)
}

func NewHashServiceWithFS(fs afero.Fs, chunkSize int, log *slog.Logger) *hashService {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &hashService{
		fs:        fs,
		chunkSize: chunkSize,
		jobs:      make(chan job, queueSize),
		done:      make(chan struct{}),
		log:       log.With(slog.String("item", "HashService")),
	}
}

// Start runs the worker until ctx is done. Calling it twice is a no-op.
func (h *hashService) Start(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer close(h.done)

		h.log.Debug("Started")

		for {
			select {
			case <-ctx.Done():
				h.log.Debug("Done")

				return
			case j := <-h.jobs:
				res, err := h.sum(j.ctx, j.entry, j.progress)
				j.result <- outcome{res: res, err: err}
			}
		}
	}()
}

// Hash queues the entry and waits for its digest. progress, if set, receives the integer percent hashed
// so far and is called only when it grows. Cancelling ctx stops the read at the next chunk boundary.
func (h *hashService) Hash(ctx context.Context, entry entity.DownloadEntry, progress func(percent int)) (entity.HashResult, error) {
	if !h.running.Load() {
		return entity.HashResult{}, ErrWorkerStopped
	}

	j := job{
		ctx:      ctx,
		entry:    entry,
		progress: progress,
		result:   make(chan outcome, 1),
	}

	select {
	case h.jobs <- j:
	case <-ctx.Done():
		return entity.HashResult{}, ctx.Err()
	case <-h.done:
		return entity.HashResult{}, ErrWorkerStopped
	}

	select {
	case o := <-j.result:
		return o.res, o.err
	case <-ctx.Done():
		return entity.HashResult{}, ctx.Err()
	case <-h.done:
		return entity.HashResult{}, ErrWorkerStopped
	}
}

func (h *hashService) sum(ctx context.Context, entry entity.DownloadEntry, progress func(percent int)) (entity.HashResult, error) {
	log := h.log.With(slog.String("path", entry.RawFilePath))

	f, err := h.fs.Open(entry.RawFilePath)
	if err != nil {
		log.Error("Cannot open archive", slog.Any("error", err))

		return entity.HashResult{}, fmt.Errorf("cannot open %s: %w", entry.RawFilePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return entity.HashResult{}, fmt.Errorf("cannot stat %s: %w", entry.RawFilePath, err)
	}

	var (
		hasher    = md5.New()
		buf       = make([]byte, h.chunkSize)
		size      = info.Size()
		processed int64
		last      = -1
	)

	for {
		if err := ctx.Err(); err != nil {
			log.Info("Hashing cancelled", slog.Int64("processed", processed))

			return entity.HashResult{}, fmt.Errorf("hashing %s cancelled: %w", entry.RawFilePath, err)
		}

		n, err := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			processed += int64(n)
			metrics.HashedBytesTotal.Add(float64(n))

			last = report(progress, percent(processed, size), last)
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			log.Error("Cannot read archive", slog.Any("error", err))

			return entity.HashResult{}, fmt.Errorf("cannot read %s: %w", entry.RawFilePath, err)
		}
	}

	report(progress, 100, last)

	sum := hex.EncodeToString(hasher.Sum(nil))
	log.Debug("Hashed", slog.String("md5", sum))

	return entity.HashResult{Entry: entry, MD5: sum}, nil
}

func percent(processed, size int64) int {
	if size <= 0 {
		return 100
	}

	p := int(processed * 100 / size)

	return min(p, 100)
}

func report(progress func(percent int), p, last int) int {
	if p <= last {
		return last
	}

	if progress != nil {
		progress(p)
	}

	return p
}
