package seal_test

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/internal/testutil"
	"github.com/earnout-labs/dealvault/pkg/ledger"
	"github.com/earnout-labs/dealvault/pkg/seal"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

const (
	dealID = "0x00000000000000000000000000000000000000000000000000000000000000d1"
	buyer  = "0xb0"
	seller = "0x5e"
)

var commitmentPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

func newSigner(t *testing.T) *sui.Keypair {
	t.Helper()
	kp, err := sui.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func newAdapter(t *testing.T, cluster *testutil.KeyServerCluster, opts ...seal.Option) *seal.Adapter {
	t.Helper()
	base := []seal.Option{
		seal.WithPolicy(testutil.PackageID, "earnout"),
		seal.WithKeyServers(cluster.IDs(), seal.StaticKeyServers(cluster.Registrations())),
		seal.WithSigner(cluster.Backend),
	}
	a, err := seal.New(append(base, opts...)...)
	require.NoError(t, err)
	return a
}

func members() testutil.Members {
	return testutil.Members{dealID: {buyer, seller}}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 3, members())
	a := newAdapter(t, cluster)
	plaintext := []byte("Q3 revenue: 1,250,000 USDC")

	res, err := a.Encrypt(t.Context(), plaintext, seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)
	require.Regexp(t, commitmentPattern, res.Commitment)
	require.Equal(t, testutil.PackageID+"::earnout", res.PolicyID)
	require.False(t, bytes.Contains(res.Ciphertext, plaintext))

	commitment, err := seal.Commitment(res.Ciphertext)
	require.NoError(t, err)
	require.Equal(t, res.Commitment, commitment)

	env, err := seal.ParseEnvelope(res.Ciphertext)
	require.NoError(t, err)
	require.Equal(t, dealID, env.Identity)
	require.Equal(t, seal.Threshold, env.Threshold)
	require.Len(t, env.Shares, 3)

	got, err := a.Decrypt(t.Context(), res.Ciphertext, dealID, seller)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptCachesRecoveredKey(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 2, members())
	a := newAdapter(t, cluster)

	res, err := a.Encrypt(t.Context(), []byte("covenant report"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)

	_, err = a.Decrypt(t.Context(), res.Ciphertext, dealID, buyer)
	require.NoError(t, err)
	calls := cluster.TotalCalls()
	require.Equal(t, 2, calls)

	_, err = a.Decrypt(t.Context(), res.Ciphertext, dealID, buyer)
	require.NoError(t, err)
	require.Equal(t, calls, cluster.TotalCalls())
}

func TestDecryptToleratesOneUnavailableServer(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 3, members())
	a := newAdapter(t, cluster)

	res, err := a.Encrypt(t.Context(), []byte("board minutes"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)

	cluster.Stop(1)
	got, err := a.Decrypt(t.Context(), res.Ciphertext, dealID, buyer)
	require.NoError(t, err)
	require.Equal(t, []byte("board minutes"), got)
}

func TestDecryptDeniedForNonParticipant(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 3, members())
	a := newAdapter(t, cluster)

	res, err := a.Encrypt(t.Context(), []byte("secret"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)

	_, err = a.Decrypt(t.Context(), res.Ciphertext, dealID, "0xeve")
	require.Error(t, err)
	require.ErrorIs(t, err, seal.ErrAccessDenied)
	require.True(t, failure.IsKind(err, failure.KindNetwork))
}

func TestDecryptWithUntrustedSigner(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 2, members())
	res, err := newAdapter(t, cluster).Encrypt(t.Context(), []byte("secret"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)

	other := newAdapter(t, cluster, seal.WithSigner(newSigner(t)))
	_, err = other.Decrypt(t.Context(), res.Ciphertext, dealID, buyer)
	require.ErrorIs(t, err, seal.ErrAccessDenied)
}

func TestDecryptDetectsTamperedShare(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 3, members())
	a := newAdapter(t, cluster)

	res, err := a.Encrypt(t.Context(), []byte("ledger export"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)
	env, err := seal.ParseEnvelope(res.Ciphertext)
	require.NoError(t, err)

	t.Run("one share relabelled", func(t *testing.T) {
		tampered := *env
		tampered.Shares = append([]seal.EncryptedShare(nil), env.Shares...)
		tampered.Shares[0].Index = env.Shares[1].Index
		ct, err := tampered.Marshal()
		require.NoError(t, err)

		got, err := a.Decrypt(t.Context(), ct, dealID, buyer)
		require.NoError(t, err)
		require.Equal(t, []byte("ledger export"), got)
	})

	t.Run("commitments replaced", func(t *testing.T) {
		other, err := a.Encrypt(t.Context(), []byte("other"), seal.PolicyConfig{DealID: dealID})
		require.NoError(t, err)
		otherEnv, err := seal.ParseEnvelope(other.Ciphertext)
		require.NoError(t, err)

		tampered := *env
		tampered.Commitments = otherEnv.Commitments
		ct, err := tampered.Marshal()
		require.NoError(t, err)

		_, err = a.Decrypt(t.Context(), ct, dealID, seller)
		require.ErrorContains(t, err, "failed verification")
	})

	t.Run("payload modified", func(t *testing.T) {
		tampered := *env
		tampered.Ciphertext = bytes.Clone(env.Ciphertext)
		tampered.Ciphertext[0] ^= 0xff
		ct, err := tampered.Marshal()
		require.NoError(t, err)

		_, err = a.Decrypt(t.Context(), ct, dealID, "0xA0")
		require.Error(t, err)
	})
}

func TestEncryptRequiresConfiguration(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 2, members())

	t.Run("disabled", func(t *testing.T) {
		a := newAdapter(t, cluster, seal.WithEnabled(false))
		_, err := a.Encrypt(t.Context(), []byte("x"), seal.PolicyConfig{DealID: dealID})
		require.True(t, failure.IsKind(err, failure.KindConfiguration))
		_, err = a.Decrypt(t.Context(), []byte("{}"), dealID, buyer)
		require.True(t, failure.IsKind(err, failure.KindConfiguration))
	})

	t.Run("no policy", func(t *testing.T) {
		a, err := seal.New(seal.WithKeyServers(cluster.IDs(), seal.StaticKeyServers(cluster.Registrations())))
		require.NoError(t, err)
		_, err = a.Encrypt(t.Context(), []byte("x"), seal.PolicyConfig{DealID: dealID})
		require.True(t, failure.IsKind(err, failure.KindConfiguration))
	})

	require.Zero(t, cluster.TotalCalls())
}

func TestZeroKeyServers(t *testing.T) {
	a, err := seal.New(
		seal.WithPolicy(testutil.PackageID, "earnout"),
		seal.WithKeyServers(nil, nil),
	)
	require.NoError(t, err)

	_, err = a.Encrypt(t.Context(), []byte("x"), seal.PolicyConfig{DealID: dealID})
	require.True(t, failure.IsKind(err, failure.KindConfiguration))
	require.ErrorContains(t, err, "threshold")
}

func TestDecryptRejectsWrongIdentity(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 2, members())
	a := newAdapter(t, cluster)

	res, err := a.Encrypt(t.Context(), []byte("x"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)

	_, err = a.Decrypt(t.Context(), res.Ciphertext, "0xd2", buyer)
	require.True(t, failure.IsKind(err, failure.KindValidation))

	_, err = a.Decrypt(t.Context(), []byte("not an envelope"), dealID, buyer)
	require.True(t, failure.IsKind(err, failure.KindValidation))
	require.Zero(t, cluster.TotalCalls())
}

func TestDecryptRequiresSigner(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 2, members())
	a, err := seal.New(
		seal.WithPolicy(testutil.PackageID, "earnout"),
		seal.WithKeyServers(cluster.IDs(), seal.StaticKeyServers(cluster.Registrations())),
	)
	require.NoError(t, err)

	res, err := a.Encrypt(t.Context(), []byte("x"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)
	_, err = a.Decrypt(t.Context(), res.Ciphertext, dealID, buyer)
	require.True(t, failure.IsKind(err, failure.KindConfiguration))
}

func TestKeyServersResolvedFromLedger(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	node.PutDeal(dealID, testutil.Participants{Buyer: buyer, Seller: seller, Auditor: "0xa0"})

	client, err := sui.NewClient(t.Context(), node.URL(), sui.WithMaxTries(1))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	led, err := ledger.New(client, ledger.WithPackageID(testutil.PackageID))
	require.NoError(t, err)

	cluster := testutil.NewKeyServerCluster(t, 3, led)
	cluster.Register(node)

	a, err := seal.New(
		seal.WithPolicy(testutil.PackageID, "earnout"),
		seal.WithKeyServers(cluster.IDs(), led),
		seal.WithSigner(cluster.Backend),
	)
	require.NoError(t, err)
	require.Zero(t, node.Calls("sui_getObject"))

	res, err := a.Encrypt(t.Context(), []byte("audited statements"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)
	resolved := node.Calls("sui_getObject")
	require.Equal(t, 3, resolved)

	got, err := a.Decrypt(t.Context(), res.Ciphertext, dealID, "0xA0")
	require.NoError(t, err)
	require.Equal(t, []byte("audited statements"), got)

	_, err = a.Decrypt(t.Context(), res.Ciphertext, dealID, "0xeve")
	require.ErrorIs(t, err, seal.ErrAccessDenied)
}

func TestEnvelopeIsJSON(t *testing.T) {
	cluster := testutil.NewKeyServerCluster(t, 2, members())
	a := newAdapter(t, cluster)

	res, err := a.Encrypt(t.Context(), []byte("x"), seal.PolicyConfig{DealID: dealID})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(res.Ciphertext, &raw))
	require.Equal(t, testutil.PackageID, raw["packageId"])
	require.Equal(t, "earnout", raw["module"])
}
