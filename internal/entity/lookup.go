package entity

// LookupResult is a successful hash lookup against the remote mod repository.
type LookupResult struct {
	Mod  LookupMod  `json:"mod"`
	File LookupFile `json:"file_details"`
}

type LookupMod struct {
	ID          int64      `json:"mod_id"`
	Name        string     `json:"name"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	CategoryID  int64      `json:"category_id"`
	Version     string     `json:"version"`
	DomainName  string     `json:"domain_name"`
	Author      string     `json:"author"`
	User        LookupUser `json:"user"`
}

type LookupUser struct {
	MemberID      int64  `json:"member_id"`
	MemberGroupID int64  `json:"member_group_id"`
	Name          string `json:"name"`
}

type LookupFile struct {
	ID         int64  `json:"file_id"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	CategoryID int64  `json:"category_id"`
	FileName   string `json:"file_name"`
	Size       int64  `json:"size_in_bytes"`
	MD5        string `json:"md5"`
}

// HashResult is produced by the hash worker.
type HashResult struct {
	Entry DownloadEntry
	MD5   string
}

// BulkReport is the outcome of a sequential bulk operation.
type BulkReport struct {
	ID        string            `json:"id"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Errors    map[string]string `json:"errors,omitempty"` // archive path -> error
}
