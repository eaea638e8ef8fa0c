package protocol

// DirEntry is one row of a directory listing (spec §3 "Directory entry").
type DirEntry struct {
	Path     string   `json:"path" msgpack:"path"`
	FileType FileType `json:"file_type" msgpack:"file_type"`
	Depth    int      `json:"depth" msgpack:"depth"`
}

// DirEntryError pairs a path that failed to resolve (e.g. during
// canonicalize) with the error that occurred, without aborting the rest of
// the listing.
type DirEntryError struct {
	Path        string `json:"path" msgpack:"path"`
	Description string `json:"description" msgpack:"description"`
}

// UnixPermissions is the unix platform substructure of a metadata record.
type UnixPermissions struct {
	OwnerRead  bool `json:"owner_read" msgpack:"owner_read"`
	OwnerWrite bool `json:"owner_write" msgpack:"owner_write"`
	OwnerExec  bool `json:"owner_exec" msgpack:"owner_exec"`
	GroupRead  bool `json:"group_read" msgpack:"group_read"`
	GroupWrite bool `json:"group_write" msgpack:"group_write"`
	GroupExec  bool `json:"group_exec" msgpack:"group_exec"`
	OtherRead  bool `json:"other_read" msgpack:"other_read"`
	OtherWrite bool `json:"other_write" msgpack:"other_write"`
	OtherExec  bool `json:"other_exec" msgpack:"other_exec"`
}

// WindowsAttributes is the windows platform substructure of a metadata
// record.
type WindowsAttributes struct {
	Archive            bool `json:"archive" msgpack:"archive"`
	Compressed         bool `json:"compressed" msgpack:"compressed"`
	Encrypted          bool `json:"encrypted" msgpack:"encrypted"`
	Hidden             bool `json:"hidden" msgpack:"hidden"`
	IntegrityStream    bool `json:"integrity_stream" msgpack:"integrity_stream"`
	Normal             bool `json:"normal" msgpack:"normal"`
	NotContentIndexed  bool `json:"not_content_indexed" msgpack:"not_content_indexed"`
	NoScrubData        bool `json:"no_scrub_data" msgpack:"no_scrub_data"`
	Offline            bool `json:"offline" msgpack:"offline"`
	RecallOnDataAccess bool `json:"recall_on_data_access" msgpack:"recall_on_data_access"`
	RecallOnOpen       bool `json:"recall_on_open" msgpack:"recall_on_open"`
	ReparsePoint       bool `json:"reparse_point" msgpack:"reparse_point"`
	SparseFile         bool `json:"sparse_file" msgpack:"sparse_file"`
	System             bool `json:"system" msgpack:"system"`
	Temporary          bool `json:"temporary" msgpack:"temporary"`
}

// Permissions is the request-side counterpart of the metadata platform
// block: what set_permissions asks the executor to apply. Unix, when set,
// gives the full permission bits; otherwise, and on non-unix targets, only
// Readonly is applied.
type Permissions struct {
	Readonly *bool            `json:"readonly,omitempty" msgpack:"readonly,omitempty"`
	Unix     *UnixPermissions `json:"unix,omitempty" msgpack:"unix,omitempty"`
}

// Metadata is the common metadata record of spec §3, plus at most one
// platform substructure. Both may be nil when the executor cannot produce
// them (e.g. the SSH-tunnelled executor on Windows, §9 Open Questions).
type Metadata struct {
	CanonicalizedPath *string            `json:"canonicalized_path,omitempty" msgpack:"canonicalized_path,omitempty"`
	FileType          FileType           `json:"file_type" msgpack:"file_type"`
	Len               uint64             `json:"len" msgpack:"len"`
	Readonly          bool               `json:"readonly" msgpack:"readonly"`
	AccessedMs        *int64             `json:"accessed,omitempty" msgpack:"accessed,omitempty"`
	CreatedMs         *int64             `json:"created,omitempty" msgpack:"created,omitempty"`
	ModifiedMs        *int64             `json:"modified,omitempty" msgpack:"modified,omitempty"`
	Unix              *UnixPermissions   `json:"unix,omitempty" msgpack:"unix,omitempty"`
	Windows           *WindowsAttributes `json:"windows,omitempty" msgpack:"windows,omitempty"`
}

// ChangeDetails carries the optional extra context on a ChangeRecord.
type ChangeDetails struct {
	Attribute string `json:"attribute,omitempty" msgpack:"attribute,omitempty"`
	Timestamp *int64 `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Extra     string `json:"extra,omitempty" msgpack:"extra,omitempty"`
}

// ChangeRecord is a single filesystem change delivered to a watch
// registration.
type ChangeRecord struct {
	TimestampMs int64          `json:"timestamp" msgpack:"timestamp"`
	Kind        ChangeKind     `json:"kind" msgpack:"kind"`
	Path        string         `json:"path" msgpack:"path"`
	Details     *ChangeDetails `json:"details,omitempty" msgpack:"details,omitempty"`
}

// PtySize is the column/row extent of a pseudo-terminal.
type PtySize struct {
	Cols uint16 `json:"cols" msgpack:"cols"`
	Rows uint16 `json:"rows" msgpack:"rows"`
}

// SystemInfo answers ReqSystemInfo.
type SystemInfo struct {
	Family        string `json:"family" msgpack:"family"` // "unix" or "windows"
	OS            string `json:"os" msgpack:"os"`
	Arch          string `json:"arch" msgpack:"arch"`
	CurrentDir    string `json:"current_dir" msgpack:"current_dir"`
	MainSeparator string `json:"main_separator" msgpack:"main_separator"`
	Username      string `json:"username" msgpack:"username"`
	Shell         string `json:"shell" msgpack:"shell"`
}

// VersionInfo answers ReqVersion.
type VersionInfo struct {
	Major uint64 `json:"major" msgpack:"major"`
	Minor uint64 `json:"minor" msgpack:"minor"`
	Patch uint64 `json:"patch" msgpack:"patch"`
}
