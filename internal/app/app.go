package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jgivc/dlmanager/internal/adapter/fsadapter"
	"github.com/jgivc/dlmanager/internal/adapter/hostadapter"
	"github.com/jgivc/dlmanager/internal/adapter/metaadapter"
	"github.com/jgivc/dlmanager/internal/adapter/nexusadapter"
	"github.com/jgivc/dlmanager/internal/config"
	"github.com/jgivc/dlmanager/internal/entity"
	httphandler "github.com/jgivc/dlmanager/internal/handler/http"
	"github.com/jgivc/dlmanager/internal/repository/lookup"
	srvdownload "github.com/jgivc/dlmanager/internal/service/download"
	"github.com/jgivc/dlmanager/internal/service/hash"
	sindex "github.com/jgivc/dlmanager/internal/service/index"
	"github.com/jgivc/dlmanager/internal/service/stats"
	"github.com/jgivc/dlmanager/internal/storage/index"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const (
	refreshTimeout  = 10 * time.Minute
	validateTimeout = 10 * time.Second
	stopTimeout     = 5 * time.Second
)

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	rdb     *redis.Client
	indexer *sindex.IndexerService
	stats   ReportService
	cancel  context.CancelFunc
	log     *slog.Logger
}

type ReportService interface {
	Report(dir string, entries []entity.DownloadEntry, now time.Time) *entity.Report
}

type KeyValidator interface {
	Validate(ctx context.Context) error
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func newLogger(level string) *slog.Logger {
	lo := &slog.HandlerOptions{}
	switch level {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}

	return slog.New(slog.NewTextHandler(os.Stderr, lo))
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	log := newLogger(a.cfg.LogLevel)
	a.log = log

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	var cache nexusadapter.Cache
	if a.cfg.CacheConfig.RedisURL != "" {
		opt, err := redis.ParseURL(a.cfg.CacheConfig.RedisURL)
		if err != nil {
			panic(err)
		}

		a.rdb = redis.NewClient(opt)
		repo := lookup.NewLookupRepository(a.rdb, a.cfg.CacheConfig.TTL, log)

		if err := repo.Ping(ctx); err != nil {
			log.Warn("Lookup cache is disabled", slog.Any("error", err))
		} else {
			cache = repo
			http.Handle("DELETE /cache", httphandler.NewClearCacheHandler(repo, log))
		}
	}

	metaStore := metaadapter.NewMetaStore(log)
	fsa := fsadapter.NewFSAdapter(metaStore, log)
	store := index.NewIndexStorage(fsa, &a.cfg.IndexerConfig, log)

	nexus := nexusadapter.NewNexusAdapter(&a.cfg.NexusConfig, cache, log)
	if a.cfg.NexusConfig.APIKey == "" {
		log.Warn("Nexus api key is not set, requery will fail")
	} else {
		go a.validate(ctx, nexus)
	}

	installer := hostadapter.SelectInstaller(a.cfg.HostConfig.Version, hostadapter.NewExecOrganizer(&a.cfg.HostConfig, log))
	log.Info("Install call shape selected", slog.String("host_version", a.cfg.HostConfig.Version), slog.String("shape", installer.Shape()))

	dSrv := srvdownload.NewDownloadService(metaStore, fsa, nexus, installer, &a.cfg.NexusConfig, &a.cfg.HostConfig, log)
	a.indexer = sindex.NewIndexService(store, dSrv, log)

	hSrv := hash.NewHashService(a.cfg.IndexerConfig.HashChunkSize, log)
	hSrv.Start(ctx)

	sSrv := stats.NewStatsService(log)
	a.stats = sSrv

	http.Handle("POST /refresh", httphandler.NewRefreshHandler(a.indexer, log))
	http.Handle("GET /entries", httphandler.NewListHandler(a.indexer.Data, log))
	http.Handle("GET /entries/not-installed", httphandler.NewListHandler(a.indexer.DataNotInstalled, log))
	http.Handle("GET /duplicates", httphandler.NewListHandler(a.indexer.Duplicates, log))
	http.Handle("GET /duplicates/groups", httphandler.NewGroupsHandler(a.indexer, log))
	http.Handle("GET /pending", httphandler.NewListHandler(a.indexer.NotInstalled, log))
	http.Handle("GET /stats", httphandler.NewStatsHandler(a.indexer, sSrv, log))
	http.Handle("DELETE /entries/{id}", httphandler.NewDeleteHandler(a.indexer, log))
	http.Handle("POST /hide", httphandler.NewHideHandler(a.indexer, log))
	http.Handle("POST /install", httphandler.NewInstallHandler(a.indexer, log))
	http.Handle("POST /requery/{id}", httphandler.NewRequeryHandler(a.indexer, hSrv, log))
	http.Handle("GET /metrics", promhttp.Handler())

	a.srv = &http.Server{
		Addr: a.cfg.Listen,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()

	go a.Refresh()
}

func (a *App) validate(ctx context.Context, nexus KeyValidator) {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := nexus.Validate(ctx); err != nil {
		a.log.Warn("Nexus api key is not valid", slog.Any("error", err))

		return
	}

	a.log.Info("Nexus api key is valid")
}

func (a *App) Refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := a.indexer.Refresh(ctx); err != nil {
		a.log.Error("Cannot refresh", slog.Any("error", err))

		return
	}

	a.log.Info("Refreshed", slog.Int("count", len(a.indexer.Data())))
}

// Dump writes stats, duplicate groups and pending updates as yaml.
func (a *App) Dump() {
	if err := a.dump(afero.NewOsFs(), a.cfg.DumpFileName); err != nil {
		a.log.Error("Cannot dump report", slog.Any("error", err))

		return
	}

	a.log.Info("Report written", slog.String("path", a.cfg.DumpFileName))
}

func (a *App) dump(fs afero.Fs, path string) error {
	report := a.stats.Report(a.indexer.Dir(), a.indexer.Data(), time.Now())

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("cannot encode report: %w", err)
	}

	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write report: %w", err)
	}

	return nil
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Error("Cannot shutdown server", slog.Any("error", err))
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.rdb != nil {
		a.rdb.Close()
	}
}
