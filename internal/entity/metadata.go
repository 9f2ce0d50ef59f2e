package entity

// Sidecar keys. Names are case-sensitive and must be written exactly like this.
const (
	MetaKeyName          = "name"
	MetaKeyModName       = "modName"
	MetaKeyVersion       = "version"
	MetaKeyNewestVersion = "newestVersion"
	MetaKeyInstalled     = "installed"
	MetaKeyUninstalled   = "uninstalled"
	MetaKeyPaused        = "paused"
	MetaKeyRemoved       = "removed"
	MetaKeyFileID        = "fileID"
	MetaKeyModID         = "modID"
	MetaKeyRepository    = "repository"
	MetaKeyGameName      = "gameName"
	MetaKeyFileTime      = "fileTime"
	MetaKeyURL           = "url"
	MetaKeyDescription   = "description"
	MetaKeyFileCategory  = "fileCategory"
	MetaKeyCategory      = "category"
	MetaKeyUserData      = "userData"

	MetaSection = "General"
	MetaFileExt = ".meta"
	MetaTrue    = "true"
	MetaFalse   = "false"
	RepoNexus   = "Nexus"
)

// MetadataRecord is the parsed content of one sidecar file.
// ModID and FileID are kept as raw strings; conversion happens when building an entry.
type MetadataRecord struct {
	Name        string
	ModName     string
	Version     string
	Installed   bool
	Removed     bool
	Repository  string
	GameName    string
	ModID       string
	FileID      string
	FileTime    string
	URL         string
	Description string

	// Extra holds every key not mapped to a field above, so writers can keep it.
	Extra map[string]string
}

// MetaPath returns the sidecar path for an archive.
func MetaPath(archivePath string) string {
	return archivePath + MetaFileExt
}
