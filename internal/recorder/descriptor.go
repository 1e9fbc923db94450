package recorder

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stimsync/internal/config"
	"github.com/roach88/stimsync/internal/synctrack"
)

// File names inside a session directory.
const (
	PairsFile      = "pairs.db"
	DescriptorFile = "session.yaml"
)

// DescriptorVersion is the version of the session.yaml layout.
const DescriptorVersion = 1

// Descriptor is the session metadata written next to pairs.db.
type Descriptor struct {
	Version            int                `yaml:"version"`
	SessionID          string             `yaml:"session_id"`
	StartedAt          string             `yaml:"started_at"`
	EndReason          string             `yaml:"end_reason"`
	ConfigHash         string             `yaml:"config_hash"`
	FramesPerDirection int                `yaml:"frames_per_direction"`
	Config             *config.Config     `yaml:"config"`
	Sync               synctrack.Stats    `yaml:"sync"`
	Directions         []DirectionSummary `yaml:"directions"`
}

// LoadDescriptor reads dir/session.yaml. Unknown fields are rejected.
func LoadDescriptor(dir string) (*Descriptor, error) {
	path := filepath.Join(dir, DescriptorFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	if d.Version != DescriptorVersion {
		return nil, fmt.Errorf("descriptor %s: unsupported version %d", path, d.Version)
	}
	if d.Config == nil {
		return nil, fmt.Errorf("descriptor %s: missing config", path)
	}
	return &d, nil
}

func writeDescriptor(dir string, d *Descriptor) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode descriptor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DescriptorFile), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}
