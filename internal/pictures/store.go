// Package pictures stores captured JPEGs under the pictures directory.
package pictures

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/samber/lo"

	"github.com/cjeanneret/PiSnap/internal/debug"
	"github.com/cjeanneret/PiSnap/internal/logic/timestamp"
)

// Policy decides what happens when two captures resolve to the same filename.
type Policy string

const (
	// Overwrite replaces the existing picture.
	Overwrite Policy = "overwrite"
	// Suffix keeps both and names the newer one YYYYMMDD_HHMMSS_N.jpg.
	Suffix Policy = "suffix"
)

// maxSuffix bounds the search for a free name under the Suffix policy.
const maxSuffix = 999

var (
	// ErrInvalidName is returned for names that are not picture filenames.
	ErrInvalidName = errors.New("invalid picture name")
	// ErrNoFreeName is returned when every suffix up to maxSuffix is taken.
	ErrNoFreeName = errors.New("no free picture name")
)

var suffixedPattern = regexp.MustCompile(`^\d{8}_\d{6}_\d{1,3}\.jpg$`)

// ValidName reports whether name is a filename this store produces.
func ValidName(name string) bool {
	return timestamp.FilenamePattern.MatchString(name) || suffixedPattern.MatchString(name)
}

// Store writes pictures into a single directory.
type Store struct {
	dir    string
	policy Policy
}

// New creates a Store for dir. An empty policy means Overwrite.
func New(dir string, policy Policy) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("pictures directory is empty")
	}
	switch policy {
	case "":
		policy = Overwrite
	case Overwrite, Suffix:
	default:
		return nil, fmt.Errorf("unknown collision policy: %q", policy)
	}
	return &Store{dir: dir, policy: policy}, nil
}

// Dir returns the pictures directory.
func (s *Store) Dir() string { return s.dir }

// Policy returns the collision policy.
func (s *Store) Policy() Policy { return s.policy }

// Save writes data as the picture taken at ts and returns its path.
// The directory is created if needed. The write goes to a temporary file
// that is renamed into place, so readers never see a partial JPEG.
func (s *Store) Save(ts time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create pictures directory: %w", err)
	}

	name, err := s.name(ts)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".capture-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename to %s: %w", name, err)
	}

	debug.Verbose("Pictures: wrote %d bytes to %s", len(data), path)
	return path, nil
}

func (s *Store) name(ts time.Time) (string, error) {
	name := timestamp.Filename(ts)
	if s.policy == Overwrite {
		return name, nil
	}

	base := strings.TrimSuffix(name, timestamp.Ext)
	candidate := name
	for i := 1; ; i++ {
		_, err := os.Lstat(filepath.Join(s.dir, candidate))
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		if i > maxSuffix {
			return "", fmt.Errorf("%w for %s", ErrNoFreeName, name)
		}
		candidate = base + "_" + strconv.Itoa(i) + timestamp.Ext
	}
}

// Open opens a stored picture by name. The name must look like a picture
// filename and the resolved path cannot leave the pictures directory.
func (s *Store) Open(name string) (*os.File, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path, err := securejoin.SecureJoin(s.dir, name)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}
	return os.Open(path)
}

// List returns stored picture names, newest first. A missing directory
// yields an empty list.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pictures directory: %w", err)
	}

	names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), e.Type().IsRegular() && ValidName(e.Name())
	})
	// YYYYMMDD_HHMMSS sorts chronologically.
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(b, a)
	})
	return names, nil
}
