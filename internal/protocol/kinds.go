// Package protocol defines the request/response sum types that travel over a
// farcall connection and their two wire forms: a self-describing JSON form
// (snake_case "type" tag, unknown fields rejected) and a compact MessagePack
// form that keeps the same field names so either side can decode a frame
// produced by a differently-versioned peer.
package protocol

// ErrorKind is the stable, wire-level error taxonomy. Exact values are part
// of the schema — never renumber, only append.
type ErrorKind string

const (
	ErrNotFound          ErrorKind = "not_found"
	ErrPermissionDenied  ErrorKind = "permission_denied"
	ErrConnectionRefused ErrorKind = "connection_refused"
	ErrConnectionReset   ErrorKind = "connection_reset"
	ErrConnectionAborted ErrorKind = "connection_aborted"
	ErrNotConnected      ErrorKind = "not_connected"
	ErrAddrInUse         ErrorKind = "addr_in_use"
	ErrAddrNotAvailable  ErrorKind = "addr_not_available"
	ErrBrokenPipe        ErrorKind = "broken_pipe"
	ErrAlreadyExists     ErrorKind = "already_exists"
	ErrWouldBlock        ErrorKind = "would_block"
	ErrInvalidInput      ErrorKind = "invalid_input"
	ErrInvalidData       ErrorKind = "invalid_data"
	ErrTimedOut          ErrorKind = "timed_out"
	ErrWriteZero         ErrorKind = "write_zero"
	ErrInterrupted       ErrorKind = "interrupted"
	ErrUnsupported       ErrorKind = "unsupported"
	ErrUnexpectedEOF     ErrorKind = "unexpected_eof"
	ErrOutOfMemory       ErrorKind = "out_of_memory"
	ErrOther             ErrorKind = "other"
)

// FileType mirrors the platform-independent classification of a directory
// entry or metadata record.
type FileType string

const (
	FileTypeFile    FileType = "file"
	FileTypeDir     FileType = "dir"
	FileTypeSymlink FileType = "symlink"
)

// ChangeKind enumerates the kinds of filesystem change a watcher can report.
type ChangeKind string

const (
	ChangeAccess    ChangeKind = "access"
	ChangeCreate    ChangeKind = "create"
	ChangeModify    ChangeKind = "modify"
	ChangeRemove    ChangeKind = "remove"
	ChangeRename    ChangeKind = "rename"
	ChangeAttribute ChangeKind = "attribute"
	ChangeOther     ChangeKind = "other"
)

// SearchTarget selects whether a search matches path names or file contents.
type SearchTarget string

const (
	SearchTargetPath     SearchTarget = "path"
	SearchTargetContents SearchTarget = "contents"
)
