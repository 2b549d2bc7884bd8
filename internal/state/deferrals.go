// Package state persists what the triage runner needs between runs.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Deferrals is the ordered list of skipped contribution ids. The order is
// the order in which they were skipped.
type Deferrals struct {
	path string
	ids  []string
}

type deferralsDoc struct {
	Skipped []string `json:"skipped"`
}

// Load reads the deferral list at path. A missing file is an empty list.
func Load(path string) (*Deferrals, error) {
	d := &Deferrals{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, err
	}
	var doc deferralsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", path, err)
	}
	for _, id := range doc.Skipped {
		d.Defer(id)
	}
	return d, nil
}

// IDs returns a copy of the list.
func (d *Deferrals) IDs() []string {
	return append([]string(nil), d.ids...)
}

// Defer moves id to the end of the list.
func (d *Deferrals) Defer(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	d.Clear(id)
	d.ids = append(d.ids, id)
}

// Clear removes id, if present.
func (d *Deferrals) Clear(id string) {
	out := d.ids[:0]
	for _, existing := range d.ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	d.ids = out
}

// Prune drops ids that are no longer open.
func (d *Deferrals) Prune(open map[string]bool) {
	out := d.ids[:0]
	for _, id := range d.ids {
		if open[id] {
			out = append(out, id)
		}
	}
	d.ids = out
}

// Save writes the list atomically.
func (d *Deferrals) Save() error {
	if d.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(deferralsDoc{Skipped: d.ids}, "", "  ")
	if err != nil {
		return err
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, d.path)
}
