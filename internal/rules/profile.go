package rules

import (
	"fmt"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// InsertPolicy controls where the store places a new candidate.
type InsertPolicy string

const (
	// InsertAppend keeps oldest-first order and drops the oldest on overflow.
	InsertAppend InsertPolicy = "append"
	// InsertPrepend keeps newest-first order and drops the oldest on overflow.
	InsertPrepend InsertPolicy = "prepend"
	// InsertReplace keeps only the most recent candidate.
	InsertReplace InsertPolicy = "replace"
)

// Profile is a strictness profile selected by page context.
type Profile struct {
	Name         string       `yaml:"name"`
	Insert       InsertPolicy `yaml:"insert"`
	Cap          int          `yaml:"cap"`
	Strict       bool         `yaml:"strict,omitempty"`
	MinURLLength int          `yaml:"min_url_length,omitempty"`
}

// Profiles is the default profile, the streaming-page profile and the
// per-platform overrides.
type Profiles struct {
	Default   Profile                    `yaml:"default"`
	Streaming Profile                    `yaml:"streaming"`
	Platforms map[types.Platform]Profile `yaml:"platforms"`
}

const (
	DefaultCap   = 50
	StreamingCap = 3
)

// DefaultProfiles returns the built-in profiles. Facebook serves thumbnails
// and video from the same CDN hosts, so its pages run strict and keep only
// the latest accepted candidate.
func DefaultProfiles() Profiles {
	return Profiles{
		Default:   Profile{Name: "default", Insert: InsertAppend, Cap: DefaultCap},
		Streaming: Profile{Name: "streaming", Insert: InsertPrepend, Cap: StreamingCap},
		Platforms: map[types.Platform]Profile{
			types.PlatformFacebook: {
				Name:         "facebook",
				Insert:       InsertReplace,
				Cap:          1,
				Strict:       true,
				MinURLLength: 100,
			},
		},
	}
}

func (p Profile) validate() error {
	switch p.Insert {
	case InsertAppend, InsertPrepend, InsertReplace:
	default:
		return fmt.Errorf("profile %q: unknown insert policy %q", p.Name, p.Insert)
	}
	if p.Cap < 1 {
		return fmt.Errorf("profile %q: cap must be at least 1, got %d", p.Name, p.Cap)
	}
	if p.Insert == InsertReplace && p.Cap != 1 {
		return fmt.Errorf("profile %q: replace policy requires cap 1, got %d", p.Name, p.Cap)
	}
	return nil
}

func (p Profiles) validate() error {
	if err := p.Default.validate(); err != nil {
		return err
	}
	if err := p.Streaming.validate(); err != nil {
		return err
	}
	for platform, prof := range p.Platforms {
		if err := prof.validate(); err != nil {
			return fmt.Errorf("platform %s: %w", platform, err)
		}
	}
	return nil
}
