package entity

import "time"

// ArchiveFile is an archive located on disk during a scan. The stat values are captured once at enumeration.
type ArchiveFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// DownloadEntry is one indexed archive. It is never changed in place: a changed entry is a new value
// that replaces the old one by RawFilePath.
type DownloadEntry struct {
	ID          string    `json:"id" yaml:"id"` // SHA1 of RawFilePath
	Name        string    `json:"name" yaml:"name"`
	ModName     string    `json:"modName" yaml:"mod_name"`
	FileName    string    `json:"fileName" yaml:"file_name"`
	FileTime    time.Time `json:"fileTime" yaml:"file_time"`
	Version     string    `json:"version" yaml:"version"`
	Installed   bool      `json:"installed" yaml:"installed"`
	Hidden      bool      `json:"hidden" yaml:"hidden"`
	RawFilePath string    `json:"rawFilePath" yaml:"path"`
	RawMetaPath string    `json:"rawMetaPath,omitempty" yaml:"meta_path,omitempty"` // empty when no sidecar was parsed
	FileSize    int64     `json:"fileSize" yaml:"size"`
	NexusModID  int64     `json:"nexusModId,omitempty" yaml:"mod_id,omitempty"`  // 0 when unknown
	NexusFileID int64     `json:"nexusFileId,omitempty" yaml:"file_id,omitempty"` // 0 when unknown
	Repository  string    `json:"repository,omitempty" yaml:"repository,omitempty"`
	GameName    string    `json:"gameName,omitempty" yaml:"game_name,omitempty"`
}

func (e *DownloadEntry) HasMeta() bool {
	return e.RawMetaPath != ""
}

// DisplayName is Name when set, otherwise the archive file name.
func (e *DownloadEntry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}

	return e.FileName
}

// DuplicateGroup is a set of entries sharing a logical key, newest first.
type DuplicateGroup struct {
	Key     string          `yaml:"key"`
	Keep    DownloadEntry   `yaml:"keep"`
	Entries []DownloadEntry `yaml:"duplicates"`
}

// Stats summarises one collection snapshot.
type Stats struct {
	Total            int    `json:"total" yaml:"total"`
	Installed        int    `json:"installed" yaml:"installed"`
	Hidden           int    `json:"hidden" yaml:"hidden"`
	WithMeta         int    `json:"withMeta" yaml:"with_meta"`
	Duplicates       int    `json:"duplicates" yaml:"duplicates"`
	Pending          int    `json:"pending" yaml:"pending"`
	TotalBytes       int64  `json:"totalBytes" yaml:"total_bytes"`
	ReclaimableBytes int64  `json:"reclaimableBytes" yaml:"reclaimable_bytes"`
	TotalSize        string `json:"totalSize" yaml:"total_size"`
	ReclaimableSize  string `json:"reclaimableSize" yaml:"reclaimable_size"`
}

// Report is written on dump requests.
type Report struct {
	GeneratedAt time.Time        `yaml:"generated_at"`
	Directory   string           `yaml:"directory"`
	Stats       Stats            `yaml:"stats"`
	Groups      []DuplicateGroup `yaml:"duplicate_groups"`
	Pending     []DownloadEntry  `yaml:"pending"`
}
