package protocol

// ReqKind is the snake_case wire tag of a request payload variant.
type ReqKind string

const (
	KindFileRead        ReqKind = "file_read"
	KindFileReadText    ReqKind = "file_read_text"
	KindFileWrite       ReqKind = "file_write"
	KindFileAppend      ReqKind = "file_append"
	KindDirRead         ReqKind = "dir_read"
	KindDirCreate       ReqKind = "dir_create"
	KindRemove          ReqKind = "remove"
	KindCopy            ReqKind = "copy"
	KindRename          ReqKind = "rename"
	KindExists          ReqKind = "exists"
	KindMetadata        ReqKind = "metadata"
	KindWatch           ReqKind = "watch"
	KindUnwatch         ReqKind = "unwatch"
	KindSetPermissions  ReqKind = "set_permissions"
	KindProcSpawn       ReqKind = "proc_spawn"
	KindProcStdin       ReqKind = "proc_stdin"
	KindProcKill        ReqKind = "proc_kill"
	KindProcResizePty   ReqKind = "proc_resize_pty"
	KindSearchStart     ReqKind = "search_start"
	KindSearchCancel    ReqKind = "search_cancel"
	KindSystemInfo      ReqKind = "system_info"
	KindVersion         ReqKind = "version"
	KindCapabilities    ReqKind = "capabilities"
)

// RequestPayload is implemented by every concrete request body. Kind
// identifies the variant for both wire forms.
type RequestPayload interface {
	Kind() ReqKind
}

// Request is the envelope of spec §3 "Request envelope". OriginID
// correlates this request to a previous message (e.g. a follow-up
// ProcResizePty); it is optional, unlike on a Response.
type Request struct {
	ID       string
	OriginID string
	Header   []byte
	Payload  RequestPayload
}

type FileRead struct {
	Path string `json:"path" msgpack:"path"`
}

func (FileRead) Kind() ReqKind { return KindFileRead }

type FileReadText struct {
	Path string `json:"path" msgpack:"path"`
}

func (FileReadText) Kind() ReqKind { return KindFileReadText }

type FileWrite struct {
	Path string `json:"path" msgpack:"path"`
	Data []byte `json:"data" msgpack:"data"`
}

func (FileWrite) Kind() ReqKind { return KindFileWrite }

type FileAppend struct {
	Path string `json:"path" msgpack:"path"`
	Data []byte `json:"data" msgpack:"data"`
}

func (FileAppend) Kind() ReqKind { return KindFileAppend }

// DirRead lists a directory. Depth == 0 means unlimited depth; see §4.4.2.
type DirRead struct {
	Path         string `json:"path" msgpack:"path"`
	Depth        uint64 `json:"depth" msgpack:"depth"`
	Absolute     bool   `json:"absolute" msgpack:"absolute"`
	Canonicalize bool   `json:"canonicalize" msgpack:"canonicalize"`
	IncludeRoot  bool   `json:"include_root" msgpack:"include_root"`
}

func (DirRead) Kind() ReqKind { return KindDirRead }

type DirCreate struct {
	Path string `json:"path" msgpack:"path"`
	All  bool   `json:"all" msgpack:"all"`
}

func (DirCreate) Kind() ReqKind { return KindDirCreate }

type Remove struct {
	Path  string `json:"path" msgpack:"path"`
	Force bool   `json:"force" msgpack:"force"`
}

func (Remove) Kind() ReqKind { return KindRemove }

type Copy struct {
	Src string `json:"src" msgpack:"src"`
	Dst string `json:"dst" msgpack:"dst"`
}

func (Copy) Kind() ReqKind { return KindCopy }

type Rename struct {
	Src string `json:"src" msgpack:"src"`
	Dst string `json:"dst" msgpack:"dst"`
}

func (Rename) Kind() ReqKind { return KindRename }

type Exists struct {
	Path string `json:"path" msgpack:"path"`
}

func (Exists) Kind() ReqKind { return KindExists }

type MetadataReq struct {
	Path            string `json:"path" msgpack:"path"`
	Canonicalize    bool   `json:"canonicalize" msgpack:"canonicalize"`
	ResolveFileType bool   `json:"resolve_file_type" msgpack:"resolve_file_type"`
}

func (MetadataReq) Kind() ReqKind { return KindMetadata }

type Watch struct {
	Path      string       `json:"path" msgpack:"path"`
	Recursive bool         `json:"recursive" msgpack:"recursive"`
	Only      []ChangeKind `json:"only,omitempty" msgpack:"only,omitempty"`
	Except    []ChangeKind `json:"except,omitempty" msgpack:"except,omitempty"`
}

func (Watch) Kind() ReqKind { return KindWatch }

type Unwatch struct {
	Path string `json:"path" msgpack:"path"`
}

func (Unwatch) Kind() ReqKind { return KindUnwatch }

type SetPermissions struct {
	Path            string      `json:"path" msgpack:"path"`
	Perms           Permissions `json:"perms" msgpack:"perms"`
	Recursive       bool        `json:"recursive" msgpack:"recursive"`
	FollowSymlinks  bool        `json:"follow_symlinks" msgpack:"follow_symlinks"`
	ExcludeSymlinks bool        `json:"exclude_symlinks" msgpack:"exclude_symlinks"`
}

func (SetPermissions) Kind() ReqKind { return KindSetPermissions }

// ProcSpawn starts a new process. Persist and AttachTo are the supplemental
// fields of SPEC_FULL.md §4: Persist keeps the process running past
// connection loss; AttachTo re-homes a PTY-backed process's output onto
// this connection and primes it with the stored scrollback.
type ProcSpawn struct {
	Cmd         string            `json:"cmd" msgpack:"cmd"`
	Environment map[string]string `json:"environment,omitempty" msgpack:"environment,omitempty"`
	CurrentDir  string            `json:"current_dir,omitempty" msgpack:"current_dir,omitempty"`
	Pty         *PtySize          `json:"pty,omitempty" msgpack:"pty,omitempty"`
	Persist     bool              `json:"persist,omitempty" msgpack:"persist,omitempty"`
	AttachTo    string            `json:"attach_to,omitempty" msgpack:"attach_to,omitempty"`
}

func (ProcSpawn) Kind() ReqKind { return KindProcSpawn }

type ProcStdin struct {
	ID   string `json:"id" msgpack:"id"`
	Data []byte `json:"data" msgpack:"data"`
}

func (ProcStdin) Kind() ReqKind { return KindProcStdin }

type ProcKill struct {
	ID string `json:"id" msgpack:"id"`
}

func (ProcKill) Kind() ReqKind { return KindProcKill }

type ProcResizePty struct {
	ID   string  `json:"id" msgpack:"id"`
	Size PtySize `json:"size" msgpack:"size"`
}

func (ProcResizePty) Kind() ReqKind { return KindProcResizePty }

type SearchStart struct {
	Query SearchQuery `json:"query" msgpack:"query"`
}

func (SearchStart) Kind() ReqKind { return KindSearchStart }

type SearchCancel struct {
	ID string `json:"id" msgpack:"id"`
}

func (SearchCancel) Kind() ReqKind { return KindSearchCancel }

type SystemInfoReq struct{}

func (SystemInfoReq) Kind() ReqKind { return KindSystemInfo }

type VersionReq struct{}

func (VersionReq) Kind() ReqKind { return KindVersion }

// CapabilitiesReq asks the executor which request kinds it supports
// (SPEC_FULL.md §4 supplemental feature #5).
type CapabilitiesReq struct{}

func (CapabilitiesReq) Kind() ReqKind { return KindCapabilities }

// reqFactories backs decode of both wire forms: given a kind tag, produce a
// fresh zero value to unmarshal into.
var reqFactories = map[ReqKind]func() RequestPayload{
	KindFileRead:       func() RequestPayload { return &FileRead{} },
	KindFileReadText:   func() RequestPayload { return &FileReadText{} },
	KindFileWrite:      func() RequestPayload { return &FileWrite{} },
	KindFileAppend:     func() RequestPayload { return &FileAppend{} },
	KindDirRead:        func() RequestPayload { return &DirRead{} },
	KindDirCreate:      func() RequestPayload { return &DirCreate{} },
	KindRemove:         func() RequestPayload { return &Remove{} },
	KindCopy:           func() RequestPayload { return &Copy{} },
	KindRename:         func() RequestPayload { return &Rename{} },
	KindExists:         func() RequestPayload { return &Exists{} },
	KindMetadata:       func() RequestPayload { return &MetadataReq{} },
	KindWatch:          func() RequestPayload { return &Watch{} },
	KindUnwatch:        func() RequestPayload { return &Unwatch{} },
	KindSetPermissions: func() RequestPayload { return &SetPermissions{} },
	KindProcSpawn:      func() RequestPayload { return &ProcSpawn{} },
	KindProcStdin:      func() RequestPayload { return &ProcStdin{} },
	KindProcKill:       func() RequestPayload { return &ProcKill{} },
	KindProcResizePty:  func() RequestPayload { return &ProcResizePty{} },
	KindSearchStart:    func() RequestPayload { return &SearchStart{} },
	KindSearchCancel:   func() RequestPayload { return &SearchCancel{} },
	KindSystemInfo:     func() RequestPayload { return &SystemInfoReq{} },
	KindVersion:        func() RequestPayload { return &VersionReq{} },
	KindCapabilities:   func() RequestPayload { return &CapabilitiesReq{} },
}
