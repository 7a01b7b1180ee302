package registry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/fetchbin/fetchbin/internal/ferrors"
)

// indexEntry is one newline-delimited JSON line of a registry index file:
// one published version of a package, source-compatible with the sparse
// crates.io index format.
type indexEntry struct {
	Name   string `json:"name"`
	Vers   string `json:"vers"`
	Yanked bool   `json:"yanked"`
	Cksum  string `json:"cksum"`
	DlPath string `json:"dl_path,omitempty"` // per-entry dl override, rare
}

// indexPath computes the sparse-registry prefix path for name, per the
// standard rule: 1- and 2-char names live directly under "1"/"2"; 3-char
// names get an extra single-character bucket; everything else is bucketed
// by its first four characters in two-character pairs. The name is
// lowercased first, as the protocol requires case-insensitive lookup.
func indexPath(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0:
		return ""
	case 1:
		return "1/" + lower
	case 2:
		return "2/" + lower
	case 3:
		return "3/" + lower[:1] + "/" + lower
	default:
		return lower[:2] + "/" + lower[2:4] + "/" + lower
	}
}

// parseIndex decodes newline-delimited JSON index entries.
func parseIndex(r io.Reader) ([]indexEntry, error) {
	var entries []indexEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e indexEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("parsing index line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	return entries, nil
}

// selectVersion picks the highest non-yanked version satisfying req ("" or
// "*" means "any"). Yanked versions are skipped entirely, even when a
// requirement pins them exactly — a yanked release is never a valid
// resolution target, only an already-locked install is left alone by a
// higher layer.
func selectVersion(name string, entries []indexEntry, req string) (*indexEntry, error) {
	var constraint *semver.Constraints
	if req != "" && req != "*" {
		c, err := semver.NewConstraint(req)
		if err != nil {
			return nil, fmt.Errorf("parsing version requirement %q: %w", req, err)
		}
		constraint = c
	}

	var best *indexEntry
	var bestVer *semver.Version
	for i := range entries {
		e := &entries[i]
		if e.Yanked {
			continue
		}
		v, err := semver.NewVersion(e.Vers)
		if err != nil {
			continue
		}
		if constraint != nil && !constraint.Check(v) {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			best, bestVer = e, v
		}
	}
	if best == nil {
		return nil, ferrors.NoMatchingVersion(name, req)
	}
	return best, nil
}
