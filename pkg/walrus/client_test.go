package walrus_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/internal/testutil"
	"github.com/earnout-labs/dealvault/pkg/walrus"
)

func newClient(t *testing.T, relay *testutil.Relay, opts ...walrus.Option) *walrus.Client {
	t.Helper()
	c, err := walrus.New(relay.URL(), relay.URL(), append([]walrus.Option{walrus.WithMaxTries(1)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestStoreAndRead(t *testing.T) {
	relay := testutil.NewRelay(t)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	relay.RequireToken(pub)
	relay.SetEpoch(10)

	c := newClient(t, relay, walrus.WithSigner(priv, "0xabc"))
	data := []byte("quarterly revenue report")

	resp, err := c.Store(t.Context(), data, walrus.StoreOptions{
		Epochs:     3,
		Attributes: map[string]string{"Deal-Id": "0xdeal"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.NewlyCreated)
	require.Equal(t, testutil.BlobIDFor(data), resp.BlobID())
	require.NotEmpty(t, resp.Attestation())
	require.Equal(t, uint64(13), resp.NewlyCreated.BlobObject.Storage.EndEpoch)
	require.Equal(t, "0xdeal", relay.LastAttributes().Get(walrus.AttributeHeaderPrefix+"Deal-Id"))

	again, err := c.Store(t.Context(), data, walrus.StoreOptions{Epochs: 3})
	require.NoError(t, err)
	require.NotNil(t, again.AlreadyCertified)
	require.Equal(t, resp.Attestation(), again.Attestation())

	got, err := c.Read(t.Context(), resp.BlobID())
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestStoreRejectsWrongSigner(t *testing.T) {
	relay := testutil.NewRelay(t)
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	relay.RequireToken(pub)

	_, other, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	c := newClient(t, relay, walrus.WithSigner(other, "0xabc"))

	_, err = c.Store(t.Context(), []byte("x"), walrus.StoreOptions{Epochs: 1})
	require.ErrorContains(t, err, "401")
	require.Equal(t, 1, relay.Requests())
}

func TestStoreWithoutSigner(t *testing.T) {
	relay := testutil.NewRelay(t)
	c := newClient(t, relay)
	require.False(t, c.CanStore())
	_, err := c.Store(t.Context(), []byte("x"), walrus.StoreOptions{Epochs: 1})
	require.Error(t, err)
	require.Zero(t, relay.Requests())
}

func TestReadUnknown(t *testing.T) {
	relay := testutil.NewRelay(t)
	c := newClient(t, relay)
	_, err := c.Read(t.Context(), "nope")
	require.ErrorIs(t, err, walrus.ErrBlobNotFound)
}

func TestMetadata(t *testing.T) {
	relay := testutil.NewRelay(t)
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	c := newClient(t, relay, walrus.WithSigner(priv, "0xabc"))

	data := []byte("balance sheet")
	resp, err := c.Store(t.Context(), data, walrus.StoreOptions{Epochs: 1})
	require.NoError(t, err)

	md, err := c.Metadata(t.Context(), resp.BlobID())
	require.NoError(t, err)
	require.NotNil(t, md.Metadata.V1)
	require.Equal(t, uint64(len(data)), md.Metadata.V1.UnencodedLength)
	digest, err := md.Metadata.V1.Hashes[0].PrimaryHash.DigestBytes()
	require.NoError(t, err)
	require.Len(t, digest, 32)
}

func TestMerkleNodeDigestBytes(t *testing.T) {
	var arr walrus.MerkleNode
	require.NoError(t, json.Unmarshal([]byte(`{"$kind":"Digest","Digest":[1,2,3]}`), &arr))
	b, err := arr.DigestBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)

	var empty walrus.MerkleNode
	require.NoError(t, json.Unmarshal([]byte(`{"$kind":"Empty"}`), &empty))
	_, err = empty.DigestBytes()
	require.Error(t, err)

	for in, kind := range map[string]string{
		`"Empty"`:                "Empty",
		`{"Digest":"AQID"}`:      walrus.DigestKind,
		`{"Other":1,"More":2}`:   walrus.UnknownKind,
		`42`:                     walrus.UnknownKind,
		`[1,2]`:                  walrus.UnknownKind,
		`{"$kind":"Leaf","x":1}`: "Leaf",
	} {
		var n walrus.MerkleNode
		require.NoError(t, json.Unmarshal([]byte(in), &n), in)
		require.Equal(t, kind, n.Kind, in)
	}

	var tagged walrus.MerkleNode
	require.NoError(t, json.Unmarshal([]byte(`{"Digest":"AQID"}`), &tagged))
	b, err = tagged.DigestBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)

	var md walrus.BlobMetadata
	doc := `{"blobId":"b1","metadata":{"V1":{"unencodedLength":5,"hashes":[{"primaryHash":"Empty","secondaryHash":"Empty"}]}}}`
	require.NoError(t, json.Unmarshal([]byte(doc), &md))
	require.Equal(t, "Empty", md.Metadata.V1.Hashes[0].PrimaryHash.Kind)
}
