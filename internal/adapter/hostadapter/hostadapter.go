package hostadapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/config"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/version"
)

const (
	EnvArchivePath = "DLM_ARCHIVE_PATH"
	EnvArchiveSize = "DLM_ARCHIVE_SIZE"

	ShapeArchive = "archive"
	ShapePath    = "path"

	maxOutput = 512
)

// Organizer is the host install subsystem. Hosts newer than 2.4 take the archive itself,
// older ones take a plain path string.
type Organizer interface {
	InstallArchive(ctx context.Context, archive entity.ArchiveFile) error
	InstallPath(ctx context.Context, path string) error
}

type Installer interface {
	Install(ctx context.Context, entry entity.DownloadEntry) error
	Shape() string
}

type archiveInstaller struct {
	org Organizer
}

func (i *archiveInstaller) Install(ctx context.Context, entry entity.DownloadEntry) error {
	return i.org.InstallArchive(ctx, entity.ArchiveFile{
		Path:    entry.RawFilePath,
		Size:    entry.FileSize,
		ModTime: entry.FileTime,
	})
}

func (i *archiveInstaller) Shape() string {
	return ShapeArchive
}

type pathInstaller struct {
	org Organizer
}

func (i *pathInstaller) Install(ctx context.Context, entry entity.DownloadEntry) error {
	return i.org.InstallPath(ctx, entry.RawFilePath)
}

func (i *pathInstaller) Shape() string {
	return ShapePath
}

// SelectInstaller picks the call shape from the host version: 2.5 and later 2.x take the archive,
// everything else, unparsable versions included, takes the path.
func SelectInstaller(hostVersion string, org Organizer) Installer {
	if v, ok := version.ParseHost(hostVersion); ok && v.Major == 2 && v.Minor > 4 {
		return &archiveInstaller{org: org}
	}

	return &pathInstaller{org: org}
}

// execOrganizer runs the configured command once per archive, replacing config.PathPlaceholder in every argument.
type execOrganizer struct {
	command []string
	log     *slog.Logger
}

func NewExecOrganizer(cfg *config.HostConfig, log *slog.Logger) *execOrganizer {
	return &execOrganizer{
		command: cfg.InstallCommand,
		log:     log.With(slog.String("item", "ExecOrganizer")),
	}
}

func (o *execOrganizer) InstallArchive(ctx context.Context, archive entity.ArchiveFile) error {
	return o.run(ctx, archive.Path,
		EnvArchivePath+"="+archive.Path,
		EnvArchiveSize+"="+strconv.FormatInt(archive.Size, 10),
	)
}

func (o *execOrganizer) InstallPath(ctx context.Context, path string) error {
	return o.run(ctx, path)
}

func (o *execOrganizer) run(ctx context.Context, path string, env ...string) error {
	if len(o.command) == 0 {
		return fmt.Errorf("%w: no install command configured", common.ErrInstallFailed)
	}

	args := make([]string, len(o.command))
	for n, arg := range o.command {
		args[n] = strings.ReplaceAll(arg, config.PathPlaceholder, path)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = append(os.Environ(), env...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log := o.log.With(slog.String("path", path))
	log.Info("Run install command", slog.String("command", args[0]))

	if err := cmd.Run(); err != nil {
		output := strings.TrimSpace(out.String())
		if len(output) > maxOutput {
			output = output[:maxOutput]
		}

		log.Error("Install command failed", slog.String("output", output), slog.Any("error", err))

		return fmt.Errorf("%w: %s: %w", common.ErrInstallFailed, path, err)
	}

	return nil
}
