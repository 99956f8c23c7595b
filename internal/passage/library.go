package passage

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed passages.toml
var builtinTOML string

type fileEntry struct {
	ID       string   `toml:"id"`
	Level    string   `toml:"level"`
	Segments []string `toml:"segments"`
}

type fileLayout struct {
	Passages []fileEntry `toml:"passage"`
}

// Library is an ordered, read-only list of passages.
type Library struct {
	passages []Passage
}

// Builtin returns the embedded passage library.
func Builtin() Library {
	lib, err := Parse(builtinTOML)
	if err != nil {
		panic(fmt.Sprintf("embedded passages are invalid: %v", err))
	}
	return lib
}

// Parse decodes passages from TOML text.
func Parse(data string) (Library, error) {
	var layout fileLayout
	if _, err := toml.Decode(data, &layout); err != nil {
		return Library{}, fmt.Errorf("failed to decode passages: %w", err)
	}
	return fromEntries(layout.Passages)
}

// LoadFile reads passages from a TOML file.
func LoadFile(path string) (Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Library{}, fmt.Errorf("failed to read passages: %w", err)
	}
	return Parse(string(data))
}

func fromEntries(entries []fileEntry) (Library, error) {
	if len(entries) == 0 {
		return Library{}, fmt.Errorf("passage list is empty")
	}
	seen := make(map[string]struct{}, len(entries))
	passages := make([]Passage, 0, len(entries))
	for i, e := range entries {
		p, err := New(e.ID, e.Level, e.Segments)
		if err != nil {
			return Library{}, fmt.Errorf("passage %d: %w", i+1, err)
		}
		if _, dup := seen[p.ID()]; dup {
			return Library{}, fmt.Errorf("duplicate passage id %q", p.ID())
		}
		seen[p.ID()] = struct{}{}
		passages = append(passages, p)
	}
	return Library{passages: passages}, nil
}

// NewLibrary builds a library from already constructed passages.
func NewLibrary(passages ...Passage) Library {
	return Library{passages: append([]Passage(nil), passages...)}
}

// Len returns the number of passages.
func (l Library) Len() int { return len(l.passages) }

// At returns passage i and whether it exists.
func (l Library) At(i int) (Passage, bool) {
	if i < 0 || i >= len(l.passages) {
		return Passage{}, false
	}
	return l.passages[i], true
}

// Find looks a passage up by id.
func (l Library) Find(id string) (Passage, bool) {
	for _, p := range l.passages {
		if p.ID() == id {
			return p, true
		}
	}
	return Passage{}, false
}

// All returns a copy of the passage list.
func (l Library) All() []Passage {
	return append([]Passage(nil), l.passages...)
}

// Levels returns the distinct reading levels in library order.
func (l Library) Levels() []string {
	var levels []string
	seen := map[string]struct{}{}
	for _, p := range l.passages {
		if _, ok := seen[p.Level()]; ok {
			continue
		}
		seen[p.Level()] = struct{}{}
		levels = append(levels, p.Level())
	}
	return levels
}
