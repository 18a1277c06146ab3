package vocconv

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DocumentMatcher reports whether the directory entry called name is an annotation document.
type DocumentMatcher func(name string) bool

// MatchExt returns a DocumentMatcher for file names ending in ext. The match is case-sensitive.
func MatchExt(ext string) DocumentMatcher {
	return func(name string) bool {
		return strings.HasSuffix(name, ext)
	}
}

// filesInDir returns all regular files found directly in directory dirPath that are accepted by
// match, in directory listing order.
func filesInDir(dirPath string, match DocumentMatcher) (files []string, err error) {
	// Open the directory.
	dirInfo, err := os.Stat(dirPath)
	if err != nil {
		return nil, ioErrorf(err, "cannot read directory %q", dirPath)
	}
	if !dirInfo.IsDir() {
		return nil, ioErrorf(os.ErrInvalid, "cannot read directory %q: not a directory", dirPath)
	}
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, ioErrorf(err, "failed to access %q", dirPath)
	}
	defer closeWithErrCheck(dir, &err)

	// Iterate over all files in dir.
	files = make([]string, 0, 100)
	var entries []os.DirEntry
	for entries, err = dir.ReadDir(100); len(entries) > 0; entries, err = dir.ReadDir(100) {
		for _, entry := range entries {
			name := entry.Name()
			// Must be a regular file or a symlink and be accepted by match.
			mode := entry.Type()
			if (!mode.IsRegular() && mode&os.ModeSymlink == 0) || !match(name) {
				continue
			}
			files = append(files, filepath.Join(dirPath, name))
		}
	}
	if err != nil && err != io.EOF {
		return nil, ioErrorf(err, "failed to list %q", dirPath)
	}

	return files, nil
}

// sortedCopy returns a sorted copy of paths.
func sortedCopy(paths []string) []string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	return sorted
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
