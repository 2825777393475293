package refs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HendryAvila/substrate/internal/value"
	"gopkg.in/yaml.v3"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// FileStore implements Store on the local filesystem.
//
// Writes for one name are serialized and land via write-to-temp-then-rename,
// so concurrent readers observe either the old or the new record.
type FileStore struct {
	root  string
	locks lockTable
}

// NewFileStore creates a filesystem-backed reference store rooted at dir.
// The directory is created lazily on the first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir, locks: lockTable{held: map[string]*nameLock{}}}
}

// Root returns the directory the store reads and writes.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) currentPath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name)+currentExt)
}

func (s *FileStore) legacyPath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name)+legacyExt)
}

// Put creates or fully replaces the record at name. The original created
// timestamp survives a replace; everything else is overwritten.
func (s *FileStore) Put(name, content string, metadata value.Map) (*Reference, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = value.Map{}
	}

	unlock := s.locks.lock(name)
	defer unlock()

	now := timeNow()
	created := now
	if existing, err := s.read(name); err == nil && !existing.Created.IsZero() {
		created = existing.Created
	}

	rec := record{
		FormatVersion: CurrentFormat,
		Content:       content,
		Metadata:      metadata.Clone(),
		Created:       formatTime(created),
		Updated:       formatTime(now),
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# reference: %s\n", name)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encoding reference %q: %w", name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding reference %q: %w", name, err)
	}

	if err := writeAtomic(s.currentPath(name), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("writing reference %q: %w", name, err)
	}

	// The current record now shadows any legacy one; drop it so a later
	// delete cannot resurrect stale content.
	if err := os.Remove(s.legacyPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing legacy record for %q: %w", name, err)
	}

	return rec.toReference(name, CurrentFormat), nil
}

// Get loads the record at name, falling back to the legacy JSON form.
func (s *FileStore) Get(name string) (*Reference, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return s.read(name)
}

// read performs the two-phase lookup: current YAML, then legacy JSON.
// The result is tagged with whichever format was parsed.
func (s *FileStore) read(name string) (*Reference, error) {
	data, err := os.ReadFile(s.currentPath(name))
	if err == nil {
		var rec record
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing reference %q: %w", name, err)
		}
		return rec.toReference(name, CurrentFormat), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading reference %q: %w", name, err)
	}

	data, err = os.ReadFile(s.legacyPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading legacy reference %q: %w", name, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing legacy reference %q: %w", name, err)
	}
	return rec.toReference(name, LegacyFormat), nil
}

// List returns every reference whose name begins with prefix, ordered by
// name. A name stored in both formats is listed once, as current.
func (s *FileStore) List(prefix string) ([]Summary, error) {
	found := map[string]Summary{}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		ext := filepath.Ext(path)
		format := LegacyFormat
		switch ext {
		case currentExt:
			format = CurrentFormat
		case legacyExt:
		default:
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, ext))
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		if prev, ok := found[name]; ok && prev.FormatVersion == CurrentFormat {
			return nil
		}

		var size int64
		if info, err := d.Info(); err == nil {
			size = info.Size()
		}
		found[name] = Summary{Name: name, FormatVersion: format, Size: size}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}

	out := make([]Summary, 0, len(found))
	for _, sum := range found {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes the record at name in whichever formats exist.
// Deleting a missing name is an error, including a second delete.
func (s *FileStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	removed := false
	for _, path := range []string{s.currentPath(name), s.legacyPath(name)} {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("deleting reference %q: %w", name, err)
		}
	}
	if !removed {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	s.pruneEmptyDirs(filepath.Dir(s.currentPath(name)))
	return nil
}

// pruneEmptyDirs removes now-empty parent directories up to the root.
// Best-effort: a non-empty directory simply stops the walk.
func (s *FileStore) pruneEmptyDirs(dir string) {
	root := filepath.Clean(s.root)
	for dir = filepath.Clean(dir); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// writeAtomic writes data to a temp file beside path and renames it into
// place, creating parent directories as needed.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// lockTable hands out one mutex per reference name. Entries are
// reference-counted and dropped when the last holder releases.
type lockTable struct {
	mu   sync.Mutex
	held map[string]*nameLock
}

type nameLock struct {
	sync.Mutex
	waiters int
}

func (t *lockTable) lock(name string) func() {
	t.mu.Lock()
	l, ok := t.held[name]
	if !ok {
		l = &nameLock{}
		t.held[name] = l
	}
	l.waiters++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(t.held, name)
		}
		t.mu.Unlock()
	}
}
