package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UnreadablePath is an input path, or an entry below one, that Discover could
// not access.
type UnreadablePath struct {
	Path string
	Err  error
}

// Discover expands paths into the list of input files. Directories are walked
// recursively and only files whose extension (optionally followed by .gz or
// .zst) is in exts are picked up; files named explicitly are always included.
// The result is de-duplicated and sorted by path. Paths that cannot be
// accessed do not stop discovery; they are returned, sorted, as unreadable.
func Discover(paths []string, exts []string) ([]InputFile, []UnreadablePath) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	wanted := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		wanted[ext] = struct{}{}
	}

	seen := make(map[string]struct{})
	var files []InputFile
	var unreadable []UnreadablePath
	add := func(path string, size int64) {
		path = filepath.Clean(path)
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		files = append(files, InputFile{Path: path, Size: size})
	}
	fail := func(path string, err error) {
		path = filepath.Clean(path)
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		unreadable = append(unreadable, UnreadablePath{Path: path, Err: err})
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			fail(root, err)
			continue
		}
		if !info.IsDir() {
			add(root, info.Size())
			continue
		}
		// the callback never returns an error, so WalkDir cannot fail
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				fail(path, err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !hasExtension(path, wanted) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				fail(path, err)
				return nil
			}
			add(path, fi.Size())
			return nil
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	sort.Slice(unreadable, func(i, j int) bool { return unreadable[i].Path < unreadable[j].Path })
	return files, unreadable
}

func hasExtension(path string, wanted map[string]struct{}) bool {
	name := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(name)
	if _, compressed := compressionByExt[ext]; compressed {
		ext = filepath.Ext(strings.TrimSuffix(name, ext))
	}
	_, ok := wanted[ext]
	return ok
}
