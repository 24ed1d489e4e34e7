// Package layout persists the operator's port-grid configuration to
// data/layout.json: which cell maps to which USB port topology path, and
// how the grid should be drawn.
package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const fileName = "layout.json"

// Cell is one slot in the operator grid.
type Cell struct {
	CellID  string `json:"cell_id"`
	Label   string `json:"label"`
	PortID  string `json:"port_id"` // stable device path / by-path
	USBHint string `json:"usb_hint"`
	Enabled bool   `json:"enabled"`
}

// Config is the full layout document, round-tripped byte-for-byte across
// export/import.
type Config struct {
	SchemaVersion int    `json:"schema_version"`
	Rows          int    `json:"rows"`
	Cols          int    `json:"cols"`
	CellSize      string `json:"cell_size"`
	Cells         []Cell `json:"cells"`
}

// Store loads and saves the layout document under a data directory.
type Store struct {
	dataDir string
}

// NewStore creates a Store rooted at dataDir. The directory is created
// lazily on first Get/Save, not here.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) path() string {
	return filepath.Join(s.dataDir, fileName)
}

func (s *Store) ensureDataDir() error {
	return os.MkdirAll(s.dataDir, 0755)
}

// defaultLayout builds the 2x4 grid ("A1".."B4") every fresh install starts
// with.
func defaultLayout() Config {
	const rows, cols = 2, 4
	cells := make([]Cell, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			label := fmt.Sprintf("%c%d", 'A'+r, c+1)
			cells = append(cells, Cell{
				CellID:  label,
				Label:   label,
				USBHint: "unknown",
				Enabled: true,
			})
		}
	}
	return Config{SchemaVersion: 1, Rows: rows, Cols: cols, CellSize: "normal", Cells: cells}
}

// Get returns the current layout. On first run it writes and returns the
// default layout; if the existing file fails to parse it returns the
// default layout without overwriting the file.
func (s *Store) Get() (Config, error) {
	if err := s.ensureDataDir(); err != nil {
		return Config{}, fmt.Errorf("layout: ensure data dir: %w", err)
	}

	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		layout := defaultLayout()
		return layout, s.Save(layout)
	}
	if err != nil {
		return Config{}, fmt.Errorf("layout: read: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return defaultLayout(), nil
	}
	return cfg, nil
}

// Save persists the layout document.
func (s *Store) Save(cfg Config) error {
	if err := s.ensureDataDir(); err != nil {
		return fmt.Errorf("layout: ensure data dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("layout: marshal: %w", err)
	}
	return os.WriteFile(s.path(), data, 0644)
}

// Export returns the current layout document as bytes, suitable for a
// file-download response.
func (s *Store) Export() ([]byte, error) {
	cfg, err := s.Get()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(cfg, "", "  ")
}

// Import parses raw as a layout document, persists it, and returns it.
func (s *Store) Import(raw []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("layout: invalid document: %w", err)
	}
	if err := s.Save(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
