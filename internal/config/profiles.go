package config

import (
	"fmt"
	"os"

	"github.com/italolelis/media_toolbox/internal/extract"
	"gopkg.in/yaml.v3"
)

// Profiles are the extractor profiles for the first attempt and the single retry.
type Profiles struct {
	Primary   extract.Profile
	Alternate extract.Profile
}

type profilesFile struct {
	Primary   *extract.Profile `yaml:"primary"`
	Alternate *extract.Profile `yaml:"alternate"`
}

// LoadProfiles reads the profile file at path. An empty path yields the built-in profiles.
// A section present in the file replaces the built-in profile entirely; a missing section
// keeps it.
func LoadProfiles(path string) (Profiles, error) {
	profiles := Profiles{
		Primary:   extract.DefaultPrimaryProfile(),
		Alternate: extract.DefaultAlternateProfile(),
	}

	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Profiles{}, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Profiles{}, fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}

	if file.Primary != nil {
		profiles.Primary = withName(*file.Primary, "primary")
	}

	if file.Alternate != nil {
		profiles.Alternate = withName(*file.Alternate, "alternate")
	}

	return profiles, nil
}

func withName(p extract.Profile, name string) extract.Profile {
	if p.Name == "" {
		p.Name = name
	}

	return p
}
