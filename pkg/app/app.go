// Package app wires every component from a loaded configuration. Commands
// build one App, use it, and Close it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"

	"github.com/earnout-labs/dealvault/pkg/access"
	"github.com/earnout-labs/dealvault/pkg/bus"
	"github.com/earnout-labs/dealvault/pkg/config"
	"github.com/earnout-labs/dealvault/pkg/documents"
	"github.com/earnout-labs/dealvault/pkg/journal"
	"github.com/earnout-labs/dealvault/pkg/keystore"
	"github.com/earnout-labs/dealvault/pkg/ledger"
	"github.com/earnout-labs/dealvault/pkg/presets"
	"github.com/earnout-labs/dealvault/pkg/seal"
	"github.com/earnout-labs/dealvault/pkg/storage"
	"github.com/earnout-labs/dealvault/pkg/sui"
	"github.com/earnout-labs/dealvault/pkg/walrus"
)

var log = logging.Logger("pkg/app")

type App struct {
	Config  config.Config
	Network presets.NetworkConfig
	// Signer is nil when no credential is configured. Uploads and decryption
	// then fail with a configuration error.
	Signer *sui.Keypair
	Keys   *keystore.Store
	Bus    bus.Bus

	Ledger    *ledger.Adapter
	Storage   *storage.Adapter
	Seal      *seal.Adapter
	Access    *access.Verifier
	Journal   *journal.Journal
	Documents *documents.Service

	closers []func() error
}

type Option func(*options)

type options struct {
	reader ledger.Reader
	relay  storage.Relay
}

// WithLedgerReader replaces the ledger node client built from config.
func WithLedgerReader(r ledger.Reader) Option {
	return func(o *options) {
		o.reader = r
	}
}

// WithRelay replaces the storage relay client built from config.
func WithRelay(r storage.Relay) Option {
	return func(o *options) {
		o.relay = r
	}
}

// New builds every component described by cfg. Network clients are created
// but nothing is contacted until a component is used.
func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	network, err := cfg.ToPresetConfig()
	if err != nil {
		return nil, fmt.Errorf("resolving network: %w", err)
	}
	a := &App{Config: cfg, Network: network, Bus: bus.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.Repo.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", cfg.Repo.Dir, err)
	}
	if a.Keys, err = keystore.NewFs(cfg.Repo.KeystoreDir()); err != nil {
		return nil, fmt.Errorf("opening keystore: %w", err)
	}
	if a.Signer, err = loadSigner(cfg.Signer, a.Keys); err != nil {
		return nil, err
	}

	timeout := cfg.Network.EffectiveTimeout()

	reader := o.reader
	if reader == nil {
		client, err := sui.NewClient(ctx, network.RPCURL.String(), sui.WithTimeout(timeout))
		if err != nil {
			return nil, fmt.Errorf("creating ledger client: %w", err)
		}
		a.closers = append(a.closers, func() error { client.Close(); return nil })
		reader = client
	}
	a.Ledger, err = ledger.New(reader,
		ledger.WithPackageID(cfg.Ledger.PackageID),
		ledger.WithSystemObjectID(network.SystemObjectID),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ledger adapter: %w", err)
	}

	relay := o.relay
	if relay == nil {
		walrusOpts := []walrus.Option{walrus.WithTimeout(timeout)}
		if a.Signer != nil {
			walrusOpts = append(walrusOpts, walrus.WithSigner(a.Signer.PrivateKey(), a.Signer.Address()))
		}
		if relay, err = walrus.New(network.PublisherURL, network.AggregatorURL, walrusOpts...); err != nil {
			return nil, fmt.Errorf("creating storage relay client: %w", err)
		}
	}
	a.Storage, err = storage.New(relay, a.Ledger,
		storage.WithMaxFileSize(cfg.Storage.MaxFileSize),
		storage.WithEpochs(cfg.Storage.Epochs),
	)
	if err != nil {
		return nil, fmt.Errorf("creating storage adapter: %w", err)
	}

	sealOpts := []seal.Option{
		seal.WithEnabled(cfg.Seal.Enabled),
		seal.WithKeyServers(network.KeyServers, a.Ledger),
		seal.WithSigner(a.Signer),
		seal.WithTimeout(timeout),
	}
	if pkg, module, ok := policy(cfg); ok {
		sealOpts = append(sealOpts, seal.WithPolicy(pkg, module))
	}
	if a.Seal, err = seal.New(sealOpts...); err != nil {
		return nil, fmt.Errorf("creating encryption adapter: %w", err)
	}

	a.Access = access.New(a.Ledger, access.WithInsecureBypass(cfg.Access.InsecureBypass))

	if a.Journal, err = journal.Open(ctx, cfg.Repo.JournalPath(), journal.WithEventBus(a.Bus)); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Journal.Close)

	a.Documents = documents.New(a.Seal, a.Storage, a.Access,
		documents.WithJournal(a.Journal),
		documents.WithEventBus(a.Bus),
	)

	log.Debugw("app ready",
		"network", network.Name,
		"ledgerPackage", cfg.Ledger.PackageID,
		"policy", a.Seal.PolicyID(),
		"keyServers", len(network.KeyServers),
		"signer", a.Signer != nil,
	)
	return a, nil
}

// policy returns the configured policy, falling back to the deal module of
// the ledger package.
func policy(cfg config.Config) (pkg, module string, ok bool) {
	if cfg.Seal.PolicyID != "" {
		pkg, module, err := config.SplitPolicyID(cfg.Seal.PolicyID)
		return pkg, module, err == nil
	}
	if cfg.Ledger.PackageID != "" {
		return cfg.Ledger.PackageID, ledger.DealModule, true
	}
	return "", "", false
}

// loadSigner prefers an inline private key, then a named keystore entry, then
// the keystore's default key if one exists.
func loadSigner(cfg config.SignerConfig, keys *keystore.Store) (*sui.Keypair, error) {
	if cfg.PrivateKey != "" {
		kp, err := sui.ParseKeypair(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parsing signer.private_key: %w", err)
		}
		return kp, nil
	}
	name := cfg.KeyFile
	if name == "" {
		name = keystore.DefaultKey
	}
	kp, err := keys.Load(name)
	if errors.Is(err, keystore.ErrKeyNotFound) && cfg.KeyFile == "" {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading signer %s: %w", name, err)
	}
	return kp, nil
}

// Close releases every resource opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
