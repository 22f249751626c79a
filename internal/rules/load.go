package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// File is the on-disk rule extension format.
//
//	rules:
//	  - pattern: '\.f4v(?:$|[/;.])'
//	    category: extension
//	    type: video
//	profiles:
//	  streaming:
//	    insert: prepend
//	    cap: 2
//	  platforms:
//	    instagram:
//	      insert: replace
//	      cap: 1
//	      strict: true
type File struct {
	Rules    []Rule       `yaml:"rules"`
	Profiles fileProfiles `yaml:"profiles"`
}

type fileProfiles struct {
	Default   *Profile                   `yaml:"default"`
	Streaming *Profile                   `yaml:"streaming"`
	Platforms map[types.Platform]Profile `yaml:"platforms"`
}

// LoadFile builds a rule set from the built-in table extended by the YAML
// file at path. Extra rules are appended after the built-in ones of the same
// category; profile entries replace the built-in profile they name.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile over an in-memory document.
func Parse(data []byte) (*RuleSet, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	all := append(DefaultRules(), f.Rules...)

	profiles := DefaultProfiles()
	if f.Profiles.Default != nil {
		profiles.Default = withName(*f.Profiles.Default, "default")
	}
	if f.Profiles.Streaming != nil {
		profiles.Streaming = withName(*f.Profiles.Streaming, "streaming")
	}
	for platform, p := range f.Profiles.Platforms {
		profiles.Platforms[platform] = withName(p, string(platform))
	}

	rs, err := New(all, profiles)
	if err != nil {
		return nil, fmt.Errorf("rules file: %w", err)
	}
	return rs, nil
}

func withName(p Profile, name string) Profile {
	if p.Name == "" {
		p.Name = name
	}
	return p
}
