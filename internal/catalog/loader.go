// Package catalog builds the in-memory theater catalog from its on-disk
// definition. Definitions are nested theaters → rooms → movie and may be
// written as JSON, JSONC (JSON with comments and trailing commas), or YAML;
// the format is picked from the file extension.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/robertarktes/cinema-seat-booking/internal/domain"
)

var ErrInvalidDefinition = errors.New("invalid catalog definition")

type Definition struct {
	Theaters []TheaterDef `json:"theaters" yaml:"theaters"`
}

type TheaterDef struct {
	Name  string    `json:"name" yaml:"name"`
	Rooms []RoomDef `json:"rooms" yaml:"rooms"`
}

type RoomDef struct {
	Name  string    `json:"name" yaml:"name"`
	Movie *MovieDef `json:"movie,omitempty" yaml:"movie,omitempty"`
}

type MovieDef struct {
	Title string `json:"title" yaml:"title"`
}

// Parse decodes data according to format ("json", "jsonc" or "yaml").
func Parse(data []byte, format string) (*Definition, error) {
	var def Definition
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, errors.Wrap(err, "parsing yaml catalog")
		}
	case "json", "jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &def); err != nil {
			return nil, errors.Wrap(err, "parsing json catalog")
		}
	default:
		return nil, errors.Newf("unknown catalog format %q", format)
	}
	return &def, nil
}

// ReadFile reads and parses a catalog definition from disk.
func ReadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	def, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return def, nil
}

// FormatFromPath maps a file extension to a format name; anything that is
// not YAML is treated as JSONC, which also accepts plain JSON.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "jsonc"
	}
}

func (d *Definition) Validate() error {
	if len(d.Theaters) == 0 {
		return errors.Wrap(ErrInvalidDefinition, "no theaters")
	}
	seen := map[string]bool{}
	for i, t := range d.Theaters {
		if t.Name == "" {
			return errors.Wrapf(ErrInvalidDefinition, "theater %d has no name", i)
		}
		// Theater names key the stored catalog documents.
		if seen[t.Name] {
			return errors.Wrapf(ErrInvalidDefinition, "theater %q is defined twice", t.Name)
		}
		seen[t.Name] = true
		for j, r := range t.Rooms {
			if r.Name == "" {
				return errors.Wrapf(ErrInvalidDefinition, "theater %q room %d has no name", t.Name, j)
			}
			if r.Movie != nil && r.Movie.Title == "" {
				return errors.Wrapf(ErrInvalidDefinition, "theater %q room %q has an untitled movie", t.Name, r.Name)
			}
		}
	}
	return nil
}

// Build validates d and turns it into a catalog. Rooms showing the same
// title share one *domain.Movie.
func Build(d *Definition) (*domain.Catalog, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	movies := map[string]*domain.Movie{}
	c := domain.NewCatalog()
	for _, td := range d.Theaters {
		t := domain.NewTheater(td.Name)
		for _, rd := range td.Rooms {
			r := domain.NewRoom(rd.Name)
			if rd.Movie != nil {
				m, ok := movies[rd.Movie.Title]
				if !ok {
					m = &domain.Movie{Title: rd.Movie.Title}
					movies[m.Title] = m
				}
				r.SetPlayingMovie(m)
			}
			t.AddRoom(r)
		}
		c.AddTheater(t)
	}
	return c, nil
}

// Load reads, validates and builds the catalog stored at path.
func Load(path string) (*domain.Catalog, error) {
	def, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(def)
}
