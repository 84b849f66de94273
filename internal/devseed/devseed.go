// Package devseed loads fixture data for the mock backend from YAML (or JSON)
// files.
package devseed

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the decoded content of a seed file.
type Seed struct {
	Admins      []AdminSeed      `yaml:"admins" json:"admins"`
	Collections []CollectionSeed `yaml:"collections" json:"collections"`
}

// AdminSeed describes an admin account. Password is stored hashed by the mock.
type AdminSeed struct {
	ID       string `yaml:"id" json:"id"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"password"`
}

// CollectionSeed describes a collection and its initial records. Records of
// auth collections may carry a plain "password" field.
type CollectionSeed struct {
	Name    string           `yaml:"name" json:"name"`
	Auth    bool             `yaml:"auth" json:"auth"`
	Records []map[string]any `yaml:"records" json:"records"`
}

// Load reads and validates the seed file at path.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	seed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("devseed: %s: %w", path, err)
	}
	return seed, nil
}

// Parse decodes and validates seed data.
func Parse(data []byte) (*Seed, error) {
	seed := &Seed{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return seed, nil
}

// Validate checks required fields and duplicate collection names.
func (s *Seed) Validate() error {
	for i, a := range s.Admins {
		if strings.TrimSpace(a.Email) == "" {
			return fmt.Errorf("admin #%d: email is required", i)
		}
		if a.Password == "" {
			return fmt.Errorf("admin %s: password is required", a.Email)
		}
	}
	seen := make(map[string]bool, len(s.Collections))
	for i, c := range s.Collections {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("collection #%d: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("collection %s: declared twice", name)
		}
		seen[name] = true
		if !c.Auth {
			continue
		}
		for j, r := range c.Records {
			if _, ok := r["email"].(string); !ok {
				return fmt.Errorf("collection %s: record #%d: auth records need an email", name, j)
			}
		}
	}
	return nil
}
