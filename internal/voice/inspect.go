package voice

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extension lists in priority order. The extension order is primary, the
// filename order secondary.
var (
	audioExts = []string{".wav", ".mp3", ".flac", ".ogg", ".m4a", ".aac"}
	modelExts = []string{".pth"}
	indexExts = []string{".index", ".faiss", ".idx"}
)

// inspectFolder builds a Record from dir. ok is false when the folder
// holds no reference audio; err is only set when dir cannot be read.
func inspectFolder(dir string) (rec Record, ok bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Record{}, false, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if isRegular(dir, e) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	ref := firstWithSuffix(names, audioExts)
	if ref == "" {
		return Record{}, false, nil
	}
	name := filepath.Base(dir)
	rec = Record{
		Name:          name,
		ID:            IDPrefix + name,
		ReferencePath: filepath.Join(dir, ref),
	}
	if m := firstWithSuffix(names, modelExts); m != "" {
		rec.ConversionModelPath = filepath.Join(dir, m)
	}
	if idx := firstWithSuffix(names, indexExts); idx != "" {
		rec.ConversionIndexPath = filepath.Join(dir, idx)
	}
	return rec, true, nil
}

// firstWithSuffix returns the first of the sorted names ending in one of
// suffixes, trying the suffixes in order.
func firstWithSuffix(sorted []string, suffixes []string) string {
	for _, s := range suffixes {
		for _, n := range sorted {
			if strings.HasSuffix(n, s) && len(n) > len(s) {
				return n
			}
		}
	}
	return ""
}

// isRegular follows symlinks so linked reference files count as files.
func isRegular(dir string, e os.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.Mode().IsRegular()
}

// isDir is isRegular for directories.
func isDir(dir string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}
