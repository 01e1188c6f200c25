package config

import (
	"fmt"
	"path/filepath"
)

type RepoConfig struct {
	Dir string `mapstructure:"data_dir" toml:"data_dir"`
}

func (r RepoConfig) Validate() error {
	if r.Dir == "" {
		return fmt.Errorf("repo data dir required")
	}
	return nil
}

// JournalPath is the sqlite database recording uploads made from this repo.
func (r RepoConfig) JournalPath() string {
	return filepath.Join(r.Dir, "journal.db")
}

// KeystoreDir holds signing credentials written by `key generate`.
func (r RepoConfig) KeystoreDir() string {
	return filepath.Join(r.Dir, "keys")
}
