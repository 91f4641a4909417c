package calc

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/kasuganosora/battleplanner/game/pokemon"
)

//go:embed data/dex.yaml
var embeddedDex []byte

var folder = cases.Fold()

// ToID normalises a move, species or item name for lookup: case-folded with
// everything but letters and digits removed.
func ToID(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, folder.String(name))
}

// Dex is the move and species data behind the builtin calculator.
type Dex struct {
	moves   map[string]MoveInfo
	species map[string]pokemon.SpeciesData
}

type dexFile struct {
	Moves   []MoveInfo            `yaml:"moves"`
	Species []pokemon.SpeciesData `yaml:"species"`
}

// ParseDex decodes a YAML dex.
func ParseDex(data []byte) (*Dex, error) {
	var f dexFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dex: %w", err)
	}
	d := &Dex{
		moves:   make(map[string]MoveInfo, len(f.Moves)),
		species: make(map[string]pokemon.SpeciesData, len(f.Species)),
	}
	for _, m := range f.Moves {
		if m.Name == "" {
			return nil, fmt.Errorf("parse dex: move without name")
		}
		if m.Category == "" {
			m.Category = Physical
		}
		d.moves[ToID(m.Name)] = m
	}
	for _, s := range f.Species {
		if s.Name == "" {
			return nil, fmt.Errorf("parse dex: species without name")
		}
		d.species[ToID(s.Name)] = s
	}
	return d, nil
}

// LoadDex reads the dex at path, or the embedded dex when path is empty.
func LoadDex(path string) (*Dex, error) {
	if path == "" {
		return ParseDex(embeddedDex)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dex: %w", err)
	}
	return ParseDex(data)
}

// DefaultDex returns the embedded dex. It panics only if the embedded file
// is broken, which tests guard.
func DefaultDex() *Dex {
	d, err := ParseDex(embeddedDex)
	if err != nil {
		panic(err)
	}
	return d
}

// Move looks up a move by any spelling of its name.
func (d *Dex) Move(name string) (MoveInfo, bool) {
	m, ok := d.moves[ToID(name)]
	return m, ok
}

// Species looks up a species. It satisfies pokemon.SpeciesLookup.
func (d *Dex) Species(name string) (pokemon.SpeciesData, bool) {
	s, ok := d.species[ToID(name)]
	return s, ok
}

// Len reports the number of moves and species.
func (d *Dex) Len() (moves, species int) {
	return len(d.moves), len(d.species)
}
