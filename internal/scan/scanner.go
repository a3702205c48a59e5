// Package scan walks directory trees for candidate audio files and hashes
// their contents for deduplication.
package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions is the stock include whitelist.
var DefaultExtensions = []string{
	".mp3", ".flac", ".ogg", ".opus", ".m4a", ".aac", ".wav", ".aiff", ".aif",
}

// Options configures a directory walk.
type Options struct {
	// MaxDepth caps recursion depth below the root; 0 means unlimited.
	MaxDepth int
	// FollowSymlinks resolves symlinked directories and files.
	FollowSymlinks bool
	// Extensions is the include whitelist (lowercase, with dot). Empty
	// falls back to DefaultExtensions.
	Extensions []string
	// ProgressEvery invokes Progress after every N entries (default 100).
	ProgressEvery int
	// Progress, when set, receives the running entry count.
	Progress func(entries int)
}

// PathError records a directory entry that could not be read.
type PathError struct {
	Path string
	Err  error
}

// Result carries the ordered candidate paths and per-path errors of one
// walk.
type Result struct {
	Paths  []string
	Errors []PathError
}

// Walk scans root for audio files. Paths come back sorted
// lexicographically by full path. The context cancels the walk between
// entries.
func Walk(ctx context.Context, root string, opts Options) (*Result, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	include := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		include[strings.ToLower(e)] = struct{}{}
	}
	progressEvery := opts.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 100
	}

	res := &Result{}
	entries := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		entries++
		if opts.Progress != nil && entries%progressEvery == 0 {
			opts.Progress(entries)
		}
		if err != nil {
			res.Errors = append(res.Errors, PathError{Path: path, Err: err})
			return nil
		}
		if d.IsDir() {
			// MaxDepth bounds how deep files may sit below the root:
			// a directory already at the cap cannot contribute files.
			if opts.MaxDepth > 0 && path != root && depthBelow(root, path) >= opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if !opts.FollowSymlinks {
				return nil
			}
			return walkSymlink(ctx, path, root, opts, include, res)
		}
		if _, ok := include[strings.ToLower(filepath.Ext(path))]; ok {
			res.Paths = append(res.Paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(res.Paths)
	return res, nil
}

// walkSymlink resolves a symlinked entry: target files are matched
// against the whitelist, target directories are walked with the
// remaining depth budget. The symlink path, not the target, is recorded.
func walkSymlink(ctx context.Context, path, root string, opts Options, include map[string]struct{}, res *Result) error {
	fi, err := os.Stat(path)
	if err != nil {
		res.Errors = append(res.Errors, PathError{Path: path, Err: err})
		return nil
	}
	if !fi.IsDir() {
		if _, ok := include[strings.ToLower(filepath.Ext(path))]; ok {
			res.Paths = append(res.Paths, path)
		}
		return nil
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		res.Errors = append(res.Errors, PathError{Path: path, Err: err})
		return nil
	}
	sub, err := Walk(ctx, target, Options{
		MaxDepth:       remainingDepth(opts.MaxDepth, root, path),
		FollowSymlinks: true,
		Extensions:     keys(include),
		ProgressEvery:  opts.ProgressEvery,
	})
	if err != nil {
		return err
	}
	res.Paths = append(res.Paths, sub.Paths...)
	res.Errors = append(res.Errors, sub.Errors...)
	return nil
}

func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

func remainingDepth(maxDepth int, root, path string) int {
	if maxDepth <= 0 {
		return 0
	}
	left := maxDepth - depthBelow(root, path)
	if left < 1 {
		return 1
	}
	return left
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
