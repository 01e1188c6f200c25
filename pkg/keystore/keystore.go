// Package keystore keeps named ledger credentials on disk, one JSON file per
// key.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/earnout-labs/dealvault/pkg/sui"
)

// DefaultKey is the key used when none is named.
const DefaultKey = "default"

const keyFileSuffix = ".key.json"

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyExists   = errors.New("key already exists")
)

var keyNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type keyFile struct {
	Scheme     string `json:"scheme"`
	PrivateKey string `json:"privateKey"`
	Address    string `json:"address"`
}

type Store struct {
	fs  afero.Fs
	dir string
	mu  sync.RWMutex
}

// NewFs opens the keystore in dir on the local filesystem, creating it if
// needed.
func NewFs(dir string) (*Store, error) {
	return New(afero.NewOsFs(), dir)
}

// NewMemory returns a keystore that lives only in memory.
func NewMemory() *Store {
	s, _ := New(afero.NewMemMapFs(), "/keys")
	return s
}

func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("directory %q not writable: %w", dir, err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

func (s *Store) path(name string) (string, error) {
	if !keyNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid key name %q", name)
	}
	return filepath.Join(s.dir, name+keyFileSuffix), nil
}

// Names lists stored keys in lexical order.
func (s *Store) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), keyFileSuffix); ok && !e.IsDir() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Has(name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return afero.Exists(s.fs, p)
}

// Generate creates and stores a fresh key under name.
func (s *Store) Generate(name string) (*sui.Keypair, error) {
	kp, err := sui.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := s.put(name, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// Import stores an encoded private key under name.
func (s *Store) Import(name, encoded string) (*sui.Keypair, error) {
	kp, err := sui.ParseKeypair(encoded)
	if err != nil {
		return nil, err
	}
	if err := s.put(name, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

func (s *Store) put(name string, kp *sui.Keypair) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok, err := afero.Exists(s.fs, p); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrKeyExists, name)
	}
	data, err := json.MarshalIndent(keyFile{
		Scheme:     "ed25519",
		PrivateKey: kp.Encode(),
		Address:    kp.Address(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0600)
}

// Load reads the key stored under name.
func (s *Store) Load(name string) (*sui.Keypair, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := afero.ReadFile(s.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %q: %w", p, err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", p, err)
	}
	if kf.Scheme != "ed25519" {
		return nil, fmt.Errorf("key %s uses unsupported scheme %q", name, kf.Scheme)
	}
	kp, err := sui.ParseKeypair(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding key %s: %w", name, err)
	}
	if kf.Address != "" && kf.Address != kp.Address() {
		return nil, fmt.Errorf("key %s: stored address %s does not match key", name, kf.Address)
	}
	return kp, nil
}

// LoadOrGenerate loads name, generating it first if it does not exist.
func (s *Store) LoadOrGenerate(name string) (*sui.Keypair, error) {
	kp, err := s.Load(name)
	if errors.Is(err, ErrKeyNotFound) {
		kp, err = s.Generate(name)
		if errors.Is(err, ErrKeyExists) {
			return s.Load(name)
		}
	}
	return kp, err
}

func (s *Store) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		return err
	}
	return nil
}
