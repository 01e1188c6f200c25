package model

// KeyServer is a registered threshold key server.
type KeyServer struct {
	// ObjectID is the server's on-ledger registration id. It doubles as the
	// server identifier bound into encrypted shares.
	ObjectID string
	Name     string
	URL      string
	// PublicKey is the server's X25519 share-encryption key.
	PublicKey []byte
}

// NetworkState is the storage network's live parameters. Prices are per
// storage unit (1 MiB) in the smallest token unit.
type NetworkState struct {
	Epoch               uint64
	NShards             uint64
	StoragePricePerUnit uint64
	WritePricePerUnit   uint64
}
