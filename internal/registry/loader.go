package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"modelrunner/internal/common/fsutil"
)

// Load reads a JSON array of entries from path. Entries without an id are
// dropped and the first entry wins on duplicate ids. Relative artifact paths
// are resolved against the registry file's directory.
func Load(path string) ([]Entry, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var raw []Entry
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", p, err)
	}
	dir := filepath.Dir(p)
	seen := make(map[string]bool, len(raw))
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		if e.Artifact != nil && e.Artifact.Path != "" {
			resolved, err := fsutil.ResolveRelative(dir, e.Artifact.Path)
			if err != nil {
				return nil, fmt.Errorf("entry %s: %w", e.ID, err)
			}
			a := *e.Artifact
			a.Path = resolved
			e.Artifact = &a
		}
		out = append(out, e)
	}
	return out, nil
}

// LoadOrEmpty applies the degrade-to-empty policy: any read or parse failure
// is logged and yields an empty registry.
func LoadOrEmpty(path string, log zerolog.Logger) []Entry {
	entries, err := Load(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("registry event=load_failed models=0")
		return []Entry{}
	}
	log.Debug().Str("path", path).Int("models", len(entries)).Msg("registry event=loaded")
	return entries
}

// Find returns the entry with the given id.
func Find(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Merge appends entries from extra whose ids are not already in base.
func Merge(base, extra []Entry) []Entry {
	out := append([]Entry(nil), base...)
	for _, e := range extra {
		if _, ok := Find(out, e.ID); !ok {
			out = append(out, e)
		}
	}
	return out
}
