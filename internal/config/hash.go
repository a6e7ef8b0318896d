package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is written next to the config file by Lock.
const ChecksumFile = ".checksums"

// ChecksumManifest records the expected BLAKE3 digest of config files by base
// name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Fingerprint returns the hex BLAKE3 digest of data.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeHash returns the BLAKE3 digest of the file at path.
func ComputeHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return Fingerprint(data), nil
}

// Lock writes a checksum manifest for configPath into its directory.
func Lock(configPath string) (*ChecksumManifest, error) {
	hash, err := ComputeHash(configPath)
	if err != nil {
		return nil, err
	}

	manifest := &ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      map[string]string{filepath.Base(configPath): hash},
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encode checksums: %w", err)
	}
	out := filepath.Join(filepath.Dir(configPath), ChecksumFile)
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", out, err)
	}
	return manifest, nil
}

// LoadChecksums reads the manifest in dir.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		return nil, err
	}
	var m ChecksumManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ChecksumFile, err)
	}
	return &m, nil
}

// verifyHash checks hash against the manifest next to configPath. A missing
// manifest or a file not listed in it passes.
func verifyHash(configPath, hash string) error {
	manifest, err := LoadChecksums(filepath.Dir(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	want, ok := manifest.Hashes[filepath.Base(configPath)]
	if !ok {
		return nil
	}
	if want != hash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s; run 'widgetsync config lock' after reviewing the change",
			filepath.Base(configPath), want, hash)
	}
	return nil
}
