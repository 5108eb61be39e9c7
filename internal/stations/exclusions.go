package stations

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ExclusionFile maps region names to station names to drop.
//
//	Hovedstaden:
//	  - Kastrup Lufthavn Godsbanegård
//	Sjaelland:
//	  - Ringsted Godsterminal
type ExclusionFile map[string][]string

// LoadExclusionFile reads a YAML exclusion file. An empty path yields an
// empty file.
func LoadExclusionFile(path string) (ExclusionFile, error) {
	if path == "" {
		return ExclusionFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "stations: read exclusions")
	}
	var f ExclusionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "stations: parse exclusions")
	}
	if f == nil {
		f = ExclusionFile{}
	}
	return f, nil
}

// For merges the file's list for region with the inline list.
func (f ExclusionFile) For(region string, inline []string) Exclusions {
	return NewExclusions(inline, f[region])
}
