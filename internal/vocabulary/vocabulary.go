package vocabulary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var ErrUnknownChemistry = errors.New("unknown chemistry")

// Chemistry is a canonical chemistry token with the spellings that map to it.
type Chemistry struct {
	Name    string   `yaml:"name" toml:"name"`
	Aliases []string `yaml:"aliases" toml:"aliases"`
}

// Vocabulary is the controlled tag list used to normalise query filters.
type Vocabulary struct {
	Chemistries []Chemistry `yaml:"chemistries" toml:"chemistries"`
	Topics      []string    `yaml:"topics" toml:"topics"`

	lookup map[string]string
}

// Load reads a YAML or, for a .toml extension, TOML vocabulary file. A
// missing file yields an empty vocabulary, which accepts any chemistry as
// given.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(nil, nil), nil
		}
		return nil, err
	}
	var v Vocabulary
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &v)
	} else {
		err = yaml.Unmarshal(data, &v)
	}
	if err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	return New(v.Chemistries, v.Topics), nil
}

func New(chems []Chemistry, topics []string) *Vocabulary {
	v := &Vocabulary{Chemistries: chems, Topics: topics, lookup: make(map[string]string)}
	for _, c := range chems {
		v.lookup[strings.ToLower(c.Name)] = c.Name
		for _, a := range c.Aliases {
			v.lookup[strings.ToLower(strings.TrimSpace(a))] = c.Name
		}
	}
	return v
}

func (v *Vocabulary) Empty() bool {
	return len(v.lookup) == 0
}

// Chemistry maps a user spelling to its canonical token.
func (v *Vocabulary) Chemistry(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || v.Empty() {
		return s, nil
	}
	if canon, ok := v.lookup[strings.ToLower(s)]; ok {
		return canon, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChemistry, s)
}

// Topic lower-cases and trims a topic filter.
func (v *Vocabulary) Topic(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
