package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yourusername/yt-extract-go/internal/domain"
)

// ErrFileNotFound is returned by Resolve when the name does not point to a listed file
var ErrFileNotFound = errors.New("file not found")

// temporary suffixes yt-dlp leaves behind while a download is in flight
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// DirFileLister implements domain.FileLister on the local filesystem
type DirFileLister struct{}

// NewDirFileLister creates a new file lister
func NewDirFileLister() *DirFileLister {
	return &DirFileLister{}
}

// List returns the finished files in dir, newest first.
// A missing dir yields an empty list.
func (l *DirFileLister) List(dir string) ([]domain.FileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.FileEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	files := make([]domain.FileEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isPartialFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, domain.FileEntry{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			Size:      info.Size(),
			SizeHuman: humanize.Bytes(uint64(info.Size())),
			ModTime:   info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// Resolve returns the path of a regular file named name directly inside dir.
// Names with path separators or parent references are rejected.
func (l *DirFileLister) Resolve(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid name %q", ErrFileNotFound, name)
	}

	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || isPartialFile(name) {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return path, nil
}

func isPartialFile(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	// fragment files look like name.mp4.part-Frag12
	return strings.Contains(lower, ".part-frag")
}
