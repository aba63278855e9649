package stats

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// JSONFile persists snapshots as a single JSON object of the form
// {"<groupId>": {"total": n, "users": {"<userId>": n}}}.
type JSONFile struct {
	path string
}

// NewJSONFile returns a persister writing to path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

type fileGroup struct {
	Total int           `json:"total"`
	Users orderedCounts `json:"users"`
}

// orderedCounts encodes as a JSON object while keeping key order, which is
// the order users were first recorded.
type orderedCounts []UserCount

func (o orderedCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, uc := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(uc.UserID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", uc.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *orderedCounts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("users: expected object, got %v", tok)
	}

	var counts orderedCounts
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		userID, ok := tok.(string)
		if !ok {
			return fmt.Errorf("users: expected string key, got %v", tok)
		}

		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("users[%s]: %w", userID, err)
		}
		counts = append(counts, UserCount{UserID: userID, Count: count})
	}

	*o = counts
	return nil
}

// Load reads the file. A missing file is an empty snapshot; a malformed one
// is an error.
func (f *JSONFile) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return nil, err
	}

	var raw map[string]fileGroup
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}

	snap := make(Snapshot, len(raw))
	for groupID, g := range raw {
		snap[groupID] = &GroupStats{Total: g.Total, Users: []UserCount(g.Users)}
	}
	return snap, nil
}

// Save overwrites the file with snap via a temporary file and rename.
func (f *JSONFile) Save(_ context.Context, snap Snapshot) error {
	raw := make(map[string]fileGroup, len(snap))
	for groupID, gs := range snap {
		raw[groupID] = fileGroup{Total: gs.Total, Users: orderedCounts(gs.Users)}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tmpFile := f.path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	if _, err = file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, f.path)
}
