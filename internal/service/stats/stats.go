package stats

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/service/reconcile"
)

const (
	serviceName = "stats"
)

type statsService struct {
	log *slog.Logger
}

func NewStatsService(log *slog.Logger) *statsService {
	return &statsService{
		log: log.With(slog.String("service", serviceName)),
	}
}

// Compute summarises a snapshot. Reclaimable bytes are the sizes of all duplicates.
func (s *statsService) Compute(entries []entity.DownloadEntry) entity.Stats {
	var st entity.Stats

	for _, e := range entries {
		st.Total++
		st.TotalBytes += e.FileSize

		if e.Installed {
			st.Installed++
		}

		if e.Hidden {
			st.Hidden++
		}

		if e.HasMeta() {
			st.WithMeta++
		}
	}

	duplicates := reconcile.Duplicates(entries)
	st.Duplicates = len(duplicates)
	for _, e := range duplicates {
		st.ReclaimableBytes += e.FileSize
	}

	st.Pending = len(reconcile.NotInstalled(entries))
	st.TotalSize = humanize.Bytes(uint64(max(st.TotalBytes, 0)))
	st.ReclaimableSize = humanize.Bytes(uint64(max(st.ReclaimableBytes, 0)))

	s.log.Debug("Stats computed",
		slog.Int("total", st.Total),
		slog.Int("duplicates", st.Duplicates),
		slog.String("reclaimable", st.ReclaimableSize))

	return st
}

// Report bundles stats, duplicate groups and pending updates for a dump.
func (s *statsService) Report(dir string, entries []entity.DownloadEntry, now time.Time) *entity.Report {
	return &entity.Report{
		GeneratedAt: now,
		Directory:   dir,
		Stats:       s.Compute(entries),
		Groups:      reconcile.Groups(entries),
		Pending:     reconcile.NotInstalled(entries),
	}
}
