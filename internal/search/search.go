// Package search implements the parallel filesystem search engine of spec
// §4.5: a walker that feeds path/content matches from a goroutine pool to a
// single reporter task, which paginates and limits what is sent back to
// the executor that dispatched the search.
package search

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/farcall-dev/farcall/internal/protocol"
)

// defaultMaxSubmatchesPerLine bounds how many submatches one line can
// contribute to a SearchMatch when the query leaves it unset
// (SPEC_FULL.md §4 supplemental feature #3).
const defaultMaxSubmatchesPerLine = 64

// ignoredDirs are skipped by default during a walk, the way search
// tooling across the pack skips VCS metadata directories.
var ignoredDirs = map[string]bool{".git": true, ".hg": true, ".svn": true}

// Run is a single in-flight or completed search; internal/server keeps one
// per outstanding search_start so a later search_cancel can find it.
type Run struct {
	ID     string
	ConnID uint64
	cancel context.CancelFunc
}

// Cancel sends the walker's shared cancellation signal (§4.5.4). Every
// visitor goroutine notices it between entries and exits promptly.
func (r *Run) Cancel() { r.cancel() }

// Start compiles query's matcher and filters, then launches the walker and
// reporter in the background. onResults is called with each paginated
// batch; onDone is called exactly once when the search concludes, whether
// by running to completion or by cancellation.
func Start(ctx context.Context, id string, query protocol.SearchQuery, onResults func([]protocol.SearchMatch), onDone func()) (*Run, error) {
	matcher, err := compileCondition(query.Condition)
	if err != nil {
		return nil, &protocol.Error{ErrKind: protocol.ErrInvalidInput, Description: err.Error()}
	}
	include, err := compileFilter(query.Options.Include, true)
	if err != nil {
		return nil, &protocol.Error{ErrKind: protocol.ErrInvalidInput, Description: err.Error()}
	}
	exclude, err := compileFilter(query.Options.Exclude, false)
	if err != nil {
		return nil, &protocol.Error{ErrKind: protocol.ErrInvalidInput, Description: err.Error()}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{ID: id, cancel: cancel}

	roots := seedRoots(query.Paths, query.Options.Upward, query.Options.MaxDepth)
	walkMaxDepth := int(query.Options.MaxDepth)
	unlimitedDepth := query.Options.MaxDepth == 0
	if query.Options.Upward {
		walkMaxDepth, unlimitedDepth = 1, false
	}

	cfg := walkConfig{
		target:         query.Target,
		matcher:        matcher,
		include:        include,
		exclude:        exclude,
		allowedTypes:   query.Options.AllowedFileTypes,
		followSymlinks: query.Options.FollowSymlinks,
		maxDepth:       walkMaxDepth,
		unlimitedDepth: unlimitedDepth,
		maxSubmatches:  query.Options.MaxSubmatchesPerLine,
	}
	if cfg.maxSubmatches == 0 {
		cfg.maxSubmatches = defaultMaxSubmatchesPerLine
	}

	go run.execute(runCtx, roots, cfg, query.Options, onResults, onDone)
	return run, nil
}

func (r *Run) execute(ctx context.Context, roots []string, cfg walkConfig, opts protocol.SearchOptions, onResults func([]protocol.SearchMatch), onDone func()) {
	defer onDone()

	threads := runtime.NumCPU()
	if threads > 12 {
		threads = 12
	}
	if threads < 1 {
		threads = 1
	}

	jobs := make(chan searchJob, 256)
	results := make(chan protocol.SearchMatch, 256)

	var workers sync.WaitGroup
	for i := 0; i < threads; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for j := range jobs {
				matchJob(ctx, j, cfg, results)
			}
		}()
	}

	var walkers sync.WaitGroup
	for _, root := range roots {
		walkers.Add(1)
		go func(root string) {
			defer walkers.Done()
			walkRoot(ctx, root, cfg, jobs)
		}(root)
	}

	go func() {
		walkers.Wait()
		close(jobs)
	}()
	go func() {
		workers.Wait()
		close(results)
	}()

	report(opts, results, onResults)
}

// seedRoots builds the target path list of §4.5.1: the query's own paths,
// plus (when Upward) every ancestor up to MaxDepth levels, deduplicated and
// sorted so the walk order is deterministic.
func seedRoots(paths []string, upward bool, maxDepth uint64) []string {
	set := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		set[abs] = true
		if !upward {
			continue
		}
		levels := int(maxDepth)
		dir := abs
		for i := 0; i < levels; i++ {
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			set[parent] = true
			dir = parent
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// compileCondition builds the regexp for one filter/query condition.
//
// This uses Go's regexp/syntax UTF-8 engine: a pattern like `\x9F` matches
// the rune U+009F (encoded as two UTF-8 bytes), not the single raw byte
// 0x9F, so a query built to find a specific non-UTF-8 byte sequence in
// binary-ish content (§8 scenario 6) will not match the way a byte-oriented
// engine (e.g. the original's `grep` crate, which can run in bytes() mode)
// would. Matching raw non-UTF-8 bytes would require scanning with
// regexp.Regexp's *bytes* entry points against deliberately-latin1-decoded
// input, or a separate byte-oriented matcher — not done here, since every
// other condition (fixed_string/equals/regex over valid UTF-8 content) is
// unaffected, and matchContents below already applies its own NUL-byte
// binary heuristic ahead of ever calling FindAllSubmatchIndex.
func compileCondition(cond protocol.Condition) (*regexp.Regexp, error) {
	switch cond.Kind {
	case "fixed_string":
		return regexp.Compile("(?m)" + regexp.QuoteMeta(cond.Value))
	case "equals":
		return regexp.Compile("(?m)^" + regexp.QuoteMeta(cond.Value) + "$")
	default: // "regex"
		return regexp.Compile("(?m)" + cond.Value)
	}
}

// compileFilter turns an optional path Condition into a predicate,
// defaulting to defaultVal when cond is nil (§4.5.1: include defaults to
// always-true, exclude to always-false).
func compileFilter(cond *protocol.Condition, defaultVal bool) (func(string) bool, error) {
	if cond == nil {
		return func(string) bool { return defaultVal }, nil
	}
	re, err := compileCondition(*cond)
	if err != nil {
		return nil, err
	}
	return re.MatchString, nil
}

type walkConfig struct {
	target         protocol.SearchTarget
	matcher        *regexp.Regexp
	include        func(string) bool
	exclude        func(string) bool
	allowedTypes   []protocol.FileType
	followSymlinks bool
	maxDepth       int
	unlimitedDepth bool
	maxSubmatches  uint64
}

func (c walkConfig) allowsType(ft protocol.FileType) bool {
	if len(c.allowedTypes) == 0 {
		return true
	}
	for _, t := range c.allowedTypes {
		if t == ft {
			return true
		}
	}
	return false
}

type searchJob struct {
	path     string
	explicit bool // depth == 0: the directly-passed root, not a descendant
	fileType protocol.FileType
}

// walkRoot drives one root's traversal. Filters are applied per entry
// without pruning subtrees (§4.5.2): a directory that itself fails a
// filter is still descended into. Cancellation is checked between every
// entry and aborts the whole walk via fs.SkipAll.
func walkRoot(ctx context.Context, root string, cfg walkConfig, jobs chan<- searchJob) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return fs.SkipAll
		default:
		}
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root && ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}

		depth := 0
		if path != root {
			if rel, relErr := filepath.Rel(root, path); relErr == nil && rel != "." {
				depth = len(strings.Split(rel, string(filepath.Separator)))
			}
		}
		if !cfg.unlimitedDepth && depth > cfg.maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		ft := entryFileType(d)
		if cfg.target == protocol.SearchTargetContents && ft != protocol.FileTypeFile {
			return nil
		}
		if !cfg.include(path) || cfg.exclude(path) || !cfg.allowsType(ft) {
			return nil
		}

		jobs <- searchJob{path: path, explicit: depth == 0, fileType: ft}
		return nil
	})
}

func entryFileType(d fs.DirEntry) protocol.FileType {
	switch {
	case d.Type()&fs.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	case d.IsDir():
		return protocol.FileTypeDir
	default:
		return protocol.FileTypeFile
	}
}

func matchJob(ctx context.Context, j searchJob, cfg walkConfig, results chan<- protocol.SearchMatch) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	if cfg.target == protocol.SearchTargetPath {
		matchPath(j, cfg, results)
		return
	}
	matchContents(j, cfg, results)
}

func matchPath(j searchJob, cfg walkConfig, results chan<- protocol.SearchMatch) {
	idx := cfg.matcher.FindAllStringSubmatchIndex(j.path, -1)
	if idx == nil {
		return
	}
	subs := make([]protocol.Submatch, 0, len(idx))
	for _, m := range idx {
		if uint64(len(subs)) >= cfg.maxSubmatches {
			break
		}
		start, end := m[0], m[1]
		subs = append(subs, protocol.Submatch{
			Match: protocol.NewTextOrBytes([]byte(j.path[start:end])),
			Start: uint64(start), End: uint64(end),
		})
	}
	results <- protocol.SearchMatch{Path: j.path, Submatches: subs}
}

// matchContents applies the explicit/implicit binary-detection policy of
// §4.5.2 — a directly-passed file (explicit) rewrites embedded NUL bytes to
// newlines and is searched anyway; a descendant (implicit) is skipped on
// the first NUL — then scans line by line for the matcher.
func matchContents(j searchJob, cfg walkConfig, results chan<- protocol.SearchMatch) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return
	}
	if nul := indexByte(data, 0); nul >= 0 {
		if !j.explicit {
			return
		}
		data = replaceByte(data, 0, '\n')
	}

	lines, offsets := splitLines(data)
	for i, line := range lines {
		idx := cfg.matcher.FindAllSubmatchIndex(line, -1)
		if idx == nil {
			continue
		}
		subs := make([]protocol.Submatch, 0, len(idx))
		for _, m := range idx {
			if uint64(len(subs)) >= cfg.maxSubmatches {
				break
			}
			start, end := m[0], m[1]
			subs = append(subs, protocol.Submatch{
				Match: protocol.NewTextOrBytes(line[start:end]),
				Start: uint64(start), End: uint64(end),
			})
		}
		results <- protocol.SearchMatch{
			Path:           j.path,
			Lines:          protocol.NewTextOrBytes(line),
			LineNumber:     uint64(i + 1),
			AbsoluteOffset: uint64(offsets[i]),
			Submatches:     subs,
		}
	}
}

func splitLines(data []byte) ([][]byte, []int) {
	var lines [][]byte
	var offsets []int
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i+1])
			offsets = append(offsets, start)
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
		offsets = append(offsets, start)
	}
	return lines, offsets
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func replaceByte(b []byte, from, to byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		if v == from {
			out[i] = to
		} else {
			out[i] = v
		}
	}
	return out
}

// report is the single reporter task of §4.5.3: it accumulates matches,
// flushes a batch once Pagination is reached, and stops appending to the
// batch once Limit total matches have been emitted — but keeps draining
// the channel so the walk and its workers are never blocked waiting on a
// reporter that stopped reading, letting the walk conclude naturally.
func report(opts protocol.SearchOptions, results <-chan protocol.SearchMatch, onResults func([]protocol.SearchMatch)) {
	var buf []protocol.SearchMatch
	var emitted uint64
	limited := opts.Limit > 0

	flush := func() {
		if len(buf) > 0 {
			onResults(buf)
			buf = nil
		}
	}

	for m := range results {
		if limited && emitted >= opts.Limit {
			continue // drain without accumulating; let the walk finish
		}
		buf = append(buf, m)
		emitted++
		if opts.Pagination > 0 && uint64(len(buf)) >= opts.Pagination {
			flush()
		}
	}
	flush()
}
