// Package lockfile implements sphinxtr.lock, a lock file that tracks MD5
// checksums of the source text each translation was produced against. It
// supplements the #| msgid comment: when a catalog carries no previous-msgid
// history, the lock file supplies the signal that a source string changed
// upstream and its translation needs to be redone.
//
// The lock file lives next to the documentation config as sphinxtr.lock.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "sphinxtr.lock"

// Version is the lock file format version.
const Version = 1

// LockFile represents the sphinxtr.lock file structure. Checksums are keyed
// by catalog (the target path relative to the locale root, slash-separated)
// and then by entry key.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"` // catalog -> entry key -> md5

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// Load reads a lock file from the given directory. A missing file is not an
// error; an empty lock file is returned so every entry reads as changed.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path

	if lf.Checksums == nil {
		lf.Checksums = make(map[string]map[string]string)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// CatalogKey builds the lock file key for a catalog from its path relative
// to the locale root.
func CatalogKey(relPath string) string {
	return filepath.ToSlash(relPath)
}

// IsChanged reports whether a source string changed since it was last
// recorded. New strings read as changed.
func (lf *LockFile) IsChanged(catalog, key, sourceContent string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	keys, ok := lf.Checksums[catalog]
	if !ok {
		return true
	}
	oldHash, ok := keys[key]
	if !ok {
		return true
	}
	return oldHash != Hash(sourceContent)
}

// Update records the checksum of a source string after its translation was
// produced or confirmed current.
func (lf *LockFile) Update(catalog, key, sourceContent string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.Checksums[catalog] == nil {
		lf.Checksums[catalog] = make(map[string]string)
	}
	lf.Checksums[catalog][key] = Hash(sourceContent)
}

// Clean removes recorded keys that are no longer present in the catalog, so
// deleted entries do not accumulate.
func (lf *LockFile) Clean(catalog string, currentKeys []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	existing := lf.Checksums[catalog]
	if existing == nil {
		return
	}

	valid := make(map[string]bool, len(currentKeys))
	for _, k := range currentKeys {
		valid[k] = true
	}

	for k := range existing {
		if !valid[k] {
			delete(existing, k)
		}
	}
}

// RemoveCatalog drops all checksums recorded for a catalog.
func (lf *LockFile) RemoveCatalog(catalog string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.Checksums, catalog)
}

// Stats returns the number of catalogs and total keys in the lock file.
func (lf *LockFile) Stats() (catalogs, keys int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	catalogs = len(lf.Checksums)
	for _, m := range lf.Checksums {
		keys += len(m)
	}
	return
}

// Catalogs returns the sorted list of catalog keys.
func (lf *LockFile) Catalogs() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	catalogs := make([]string, 0, len(lf.Checksums))
	for c := range lf.Checksums {
		catalogs = append(catalogs, c)
	}
	sort.Strings(catalogs)
	return catalogs
}

// EntryKey builds a lock file key from a PO msgid and msgctxt.
func EntryKey(msgid, msgctxt string) string {
	if msgctxt != "" {
		return msgctxt + "|" + msgid
	}
	return msgid
}

// EntryContent builds the source content string for hashing. The plural form
// is included so a change to either singular or plural triggers
// re-translation.
func EntryContent(msgid, msgidPlural string) string {
	if msgidPlural != "" {
		return msgid + "\x00" + msgidPlural
	}
	return msgid
}
