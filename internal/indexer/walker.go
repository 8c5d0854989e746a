package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultMaxFileSize caps the size of files picked up by the walker
const DefaultMaxFileSize = 1 << 20

// sniffSize is how much of a file is checked for NUL bytes
const sniffSize = 8000

// skippedDirs are never descended into, in addition to hidden directories
var skippedDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	"target":       true,
}

// WalkOptions configures file discovery
type WalkOptions struct {
	// MaxFileSize skips larger files; non-positive selects DefaultMaxFileSize
	MaxFileSize int64

	// OnSkip is called for every file or directory below root that could not
	// be read. The walk continues past it.
	OnSkip func(path string, err error)
}

func (o WalkOptions) skip(path string, err error) {
	if o.OnSkip != nil {
		o.OnSkip(path, err)
	}
}

// Walk returns the absolute paths of the indexable files under root, sorted.
// Hidden entries, well-known dependency and build directories, binary files,
// oversized files and paths matched by root/.gitignore are skipped. Unreadable
// entries below root are reported through opts.OnSkip; only an unreadable root
// fails the walk.
func Walk(ctx context.Context, root string, opts WalkOptions) ([]string, error) {
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	rules, err := loadIgnore(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return err
		}
		if err != nil {
			opts.skip(path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			if rules != nil && (rules.MatchesPath(rel) || rules.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if rules != nil && rules.MatchesPath(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			opts.skip(path, err)
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}

		binary, err := isBinary(path)
		if err != nil {
			opts.skip(path, err)
			return nil
		}
		if binary {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func loadIgnore(root string) (*ignore.GitIgnore, error) {
	path := filepath.Join(root, ".gitignore")
	rules, err := ignore.CompileIgnoreFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rules, nil
}

// isBinary reports whether the first bytes of the file contain a NUL byte
func isBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return bytes.IndexByte(buf[:n], 0) >= 0, nil
}
