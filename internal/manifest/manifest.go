// Package manifest implements the installer's two-file install ledger:
// a source-compatible ".crates.toml" and a native line-delimited JSON
// file, both updated together under a single exclusive file lock.
package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"

	"github.com/fetchbin/fetchbin/internal/pkgdata"
)

const (
	compatFileName = ".crates.toml"
	legacyFileName = ".crates2.json"
	nativeSubdir   = "binstall"
	nativeFileName = "crates-v1.json"
)

// Store owns both manifest files under a config root, serializing
// access through a single OS-level lock for the duration of a
// transaction: lock, read, compute, overwrite, unlock.
type Store struct {
	root       string
	compatPath string
	legacyPath string
	nativePath string
	lock       *flock.Flock
	locked     bool
}

// Open returns a Store rooted at configRoot, creating the root and the
// native subdirectory if they don't exist. The lock is not acquired yet;
// call Lock before Load or Save.
func Open(configRoot string) (*Store, error) {
	nativeDir := filepath.Join(configRoot, nativeSubdir)
	if err := os.MkdirAll(nativeDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating manifest directory: %w", err)
	}
	return &Store{
		root:       configRoot,
		compatPath: filepath.Join(configRoot, compatFileName),
		legacyPath: filepath.Join(configRoot, legacyFileName),
		nativePath: filepath.Join(nativeDir, nativeFileName),
		lock:       flock.New(filepath.Join(configRoot, compatFileName+".lock")),
	}, nil
}

// Lock acquires the exclusive manifest lock, failing fast rather than
// blocking if another fetchbin process already holds it.
func (s *Store) Lock() error {
	if s.locked {
		return nil
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring manifest lock: %w", err)
	}
	if !ok {
		return errors.New("another fetchbin process is updating the manifest")
	}
	s.locked = true
	return nil
}

// Unlock releases the manifest lock.
func (s *Store) Unlock() error {
	if !s.locked {
		return nil
	}
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("releasing manifest lock: %w", err)
	}
	s.locked = false
	return nil
}

// Load reads the current set of install records, merging the native
// file with any source-compatible entry the native file doesn't
// recognize. Such entries are honored as installed with the name,
// version, source kind and source URL parsed from their key and the bins
// listed under it; VersionReq and Target are left zero. Must be called
// while locked.
func (s *Store) Load() ([]pkgdata.InstallRecord, error) {
	if !s.locked {
		return nil, errors.New("must acquire lock before loading the manifest")
	}

	native, err := s.readNative()
	if err != nil {
		return nil, err
	}
	compat, err := s.readCompat()
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]pkgdata.InstallRecord, len(native))
	for _, rec := range native {
		byKey[rec.ManifestKey()] = rec
	}
	for key, bins := range compat {
		if _, ok := byKey[key]; ok {
			continue
		}
		name, version, sourceKind, sourceURL, ok := parseCompatKey(key)
		if !ok {
			continue
		}
		byKey[key] = pkgdata.InstallRecord{
			Name:             name,
			InstalledVersion: version,
			SourceKind:       sourceKind,
			SourceURL:        sourceURL,
			Bins:             bins,
		}
	}

	out := make([]pkgdata.InstallRecord, 0, len(byKey))
	for _, rec := range byKey {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save overwrites both manifest files with records, flushing the
// source-compatible file first so a crash between the two writes leaves
// it authoritative: a later Load will still see every installed
// package, just with degraded fields for ones the native write never
// reached. Must be called while locked.
func (s *Store) Save(records []pkgdata.InstallRecord) error {
	if !s.locked {
		return errors.New("must acquire lock before saving the manifest")
	}
	sorted := append([]pkgdata.InstallRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	if err := s.writeCompat(sorted); err != nil {
		return err
	}
	return s.writeNative(sorted)
}

func (s *Store) readNative() ([]pkgdata.InstallRecord, error) {
	f, err := os.Open(s.nativePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading native manifest: %w", err)
	}
	defer f.Close()

	var out []pkgdata.InstallRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec pkgdata.InstallRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing native manifest line: %w", err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading native manifest: %w", err)
	}
	return out, nil
}

func (s *Store) writeNative(records []pkgdata.InstallRecord) error {
	var buf []byte
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding native manifest record %q: %w", rec.Name, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return atomicWrite(s.nativePath, buf)
}

// compatDoc mirrors the source-based installer's ".crates.toml" shape: a
// flat table from install key to the set of binary names it placed.
type compatDoc struct {
	V1 map[string][]string `toml:"v1"`
}

func (s *Store) readCompat() (map[string][]string, error) {
	raw, err := os.ReadFile(s.compatPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading compat manifest: %w", err)
	}
	var doc compatDoc
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing compat manifest: %w", err)
	}
	return doc.V1, nil
}

func (s *Store) writeCompat(records []pkgdata.InstallRecord) error {
	doc := compatDoc{V1: make(map[string][]string, len(records))}
	for _, rec := range records {
		doc.V1[rec.ManifestKey()] = rec.Bins
	}
	raw, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding compat manifest: %w", err)
	}
	return atomicWrite(s.compatPath, raw)
}

// HasLegacyManifest reports whether a legacy ".crates2.json" file exists
// alongside the managed manifests. fetchbin never writes this file; it
// is surfaced read-only so a caller can warn a user who still has one
// from a source-based installer, per the open question's resolution.
func (s *Store) HasLegacyManifest() bool {
	_, err := os.Stat(s.legacyPath)
	return err == nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming into %s: %w", filepath.Base(path), err)
	}
	return nil
}

func parseCompatKey(key string) (name, version string, sourceKind pkgdata.SourceKind, sourceURL string, ok bool) {
	// "<name> <version> (<source-kind>+<url>)"
	var rest string
	name, rest, ok = strings.Cut(key, " ")
	if !ok {
		return
	}
	version, rest, ok = strings.Cut(rest, " (")
	if !ok {
		return
	}
	if !strings.HasSuffix(rest, ")") {
		return "", "", "", "", false
	}
	rest = strings.TrimSuffix(rest, ")")
	kind, url, ok := strings.Cut(rest, "+")
	if !ok {
		return "", "", "", "", false
	}
	return name, version, pkgdata.SourceKind(kind), url, true
}
