package knowledge

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PriceItem is one line of the price table.
type PriceItem struct {
	Item  string `yaml:"item"`
	Price string `yaml:"price"`
}

// Profile describes the facts a deployment is allowed to talk about.
type Profile struct {
	Role       string      `yaml:"role"`
	Services   []string    `yaml:"services"`
	Facts      []string    `yaml:"facts"`
	Prices     []PriceItem `yaml:"prices"`
	Promotions []string    `yaml:"promotions"`
	Tone       string      `yaml:"tone"`
	Directives []string    `yaml:"directives"`
}

// Validate ensures the profile can produce a usable context.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Role) == "" {
		return errors.New("knowledge: profile role is required")
	}
	if len(p.Services) == 0 && len(p.Facts) == 0 && len(p.Prices) == 0 {
		return errors.New("knowledge: profile has no services, facts or prices")
	}
	if len(p.Directives) == 0 {
		return errors.New("knowledge: profile needs at least one answering directive")
	}
	return nil
}

// LoadProfile reads a YAML profile from disk.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("knowledge: read profile: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("knowledge: decode profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}
