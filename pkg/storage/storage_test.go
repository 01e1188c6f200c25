package storage_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/internal/testutil"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/storage"
	"github.com/earnout-labs/dealvault/pkg/walrus"
)

type networkState struct {
	state model.NetworkState
	reads atomic.Int32
	err   error
}

func (n *networkState) SystemState(context.Context) (model.NetworkState, error) {
	n.reads.Add(1)
	return n.state, n.err
}

func testNetwork() *networkState {
	return &networkState{state: model.NetworkState{
		Epoch:               100,
		NShards:             1000,
		StoragePricePerUnit: 11000,
		WritePricePerUnit:   20000,
	}}
}

func newAdapter(t *testing.T, relay *testutil.Relay, network storage.NetworkState, signed bool, opts ...storage.Option) *storage.Adapter {
	t.Helper()
	relayOpts := []walrus.Option{walrus.WithMaxTries(1)}
	if signed {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		relayOpts = append(relayOpts, walrus.WithSigner(priv, "0xb0"))
	}
	client, err := walrus.New(relay.URL(), relay.URL(), relayOpts...)
	require.NoError(t, err)
	a, err := storage.New(client, network, opts...)
	require.NoError(t, err)
	return a
}

var metadata = model.UploadMetadata{DealID: "0xd1", PeriodID: "2026-Q2", DataType: "revenue", Uploader: "0xb0"}

func TestUploadDownloadRoundTrip(t *testing.T) {
	relay := testutil.NewRelay(t)
	network := testNetwork()
	a := newAdapter(t, relay, network, true, storage.WithEpochs(3))

	for _, size := range []int{0, 1, 1023, 4096} {
		data := make([]byte, size)
		_, err := rand.Read(data)
		require.NoError(t, err)

		res, err := a.Upload(t.Context(), data, metadata)
		require.NoError(t, err)
		require.NotEmpty(t, res.BlobID)
		require.True(t, strings.HasPrefix(res.Commitment, model.WalrusCommitmentPrefix))
		require.Equal(t, uint64(size), res.Size)
		require.Equal(t, uint64(100), res.StartEpoch)
		require.Equal(t, uint64(103), res.EndEpoch)

		got, err := a.Download(t.Context(), res.BlobID)
		require.NoError(t, err)
		require.Equal(t, data, got)
	}
	require.Equal(t, "0xd1", relay.LastAttributes().Get(walrus.AttributeHeaderPrefix+"Deal-Id"))
}

func TestUploadRejectsOversizeWithoutNetwork(t *testing.T) {
	relay := testutil.NewRelay(t)
	network := testNetwork()
	a := newAdapter(t, relay, network, true, storage.WithMaxFileSize(1024))

	for _, size := range []int{1024, 2048} {
		_, err := a.Upload(t.Context(), make([]byte, size), metadata)
		require.True(t, failure.IsKind(err, failure.KindValidation), "size %d", size)
	}
	require.Zero(t, relay.Requests())
	require.Zero(t, network.reads.Load())

	_, err := a.Upload(t.Context(), make([]byte, 1023), metadata)
	require.NoError(t, err)
}

func TestUploadWithoutSigner(t *testing.T) {
	relay := testutil.NewRelay(t)
	network := testNetwork()
	a := newAdapter(t, relay, network, false)

	_, err := a.Upload(t.Context(), []byte("data"), metadata)
	require.True(t, failure.IsKind(err, failure.KindConfiguration))
	require.Zero(t, relay.Requests())
	require.Zero(t, network.reads.Load())
}

func TestUploadReadsLiveEpoch(t *testing.T) {
	relay := testutil.NewRelay(t)
	network := testNetwork()
	a := newAdapter(t, relay, network, true, storage.WithEpochs(5))

	first, err := a.Upload(t.Context(), []byte("one"), metadata)
	require.NoError(t, err)
	network.state.Epoch = 120
	second, err := a.Upload(t.Context(), []byte("two"), metadata)
	require.NoError(t, err)

	require.Equal(t, uint64(105), first.EndEpoch)
	require.Equal(t, uint64(125), second.EndEpoch)
	require.Equal(t, int32(2), network.reads.Load())
}

func TestUploadNetworkErrors(t *testing.T) {
	t.Run("epoch read fails before storing", func(t *testing.T) {
		relay := testutil.NewRelay(t)
		network := testNetwork()
		network.err = errors.New("node down")
		a := newAdapter(t, relay, network, true)

		_, err := a.Upload(t.Context(), []byte("x"), metadata)
		require.True(t, failure.IsKind(err, failure.KindNetwork))
		require.ErrorContains(t, err, "node down")
		require.Zero(t, relay.Stores())
	})

	t.Run("relay rejects", func(t *testing.T) {
		relay := testutil.NewRelay(t)
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		relay.RequireToken(pub)
		a := newAdapter(t, relay, testNetwork(), true)

		_, err = a.Upload(t.Context(), []byte("x"), metadata)
		require.True(t, failure.IsKind(err, failure.KindNetwork))
	})
}

func TestDownloadUnknown(t *testing.T) {
	relay := testutil.NewRelay(t)
	a := newAdapter(t, relay, testNetwork(), true)
	_, err := a.Download(t.Context(), "missing")
	require.True(t, failure.IsKind(err, failure.KindNetwork))
	require.ErrorIs(t, err, walrus.ErrBlobNotFound)
}

func TestGetBlobInfo(t *testing.T) {
	relay := testutil.NewRelay(t)
	a := newAdapter(t, relay, testNetwork(), true)
	data := []byte("cash flow statement")
	res, err := a.Upload(t.Context(), data, metadata)
	require.NoError(t, err)

	info, err := a.GetBlobInfo(t.Context(), res.BlobID)
	require.NoError(t, err)
	require.Equal(t, uint64(len(data)), info.Size)
	require.Equal(t, model.WalrusCommitmentPrefix+testutil.PrimaryDigestHex(data), info.Commitment)

	relay.SetHashKind("Empty")
	info, err = a.GetBlobInfo(t.Context(), res.BlobID)
	require.NoError(t, err)
	require.Equal(t, model.UnknownWalrusCommitment, info.Commitment)

	for _, raw := range []any{"Empty", 7, []any{"x"}, map[string]any{"Leaf": map[string]any{"a": 1}}} {
		relay.SetRawHash(raw)
		info, err = a.GetBlobInfo(t.Context(), res.BlobID)
		require.NoError(t, err, "%v", raw)
		require.Equal(t, model.UnknownWalrusCommitment, info.Commitment)
		require.Equal(t, uint64(len(data)), info.Size)
	}

	_, err = a.GetBlobInfo(t.Context(), "missing")
	require.True(t, failure.IsKind(err, failure.KindNetwork))
}

func TestCalculateStorageCost(t *testing.T) {
	relay := testutil.NewRelay(t)
	a := newAdapter(t, relay, testNetwork(), false, storage.WithEpochs(5))

	cost, err := a.CalculateStorageCost(t.Context(), 1024, 0)
	require.NoError(t, err)
	require.Equal(t, model.StorageCost{
		StorageCost: 63 * 11000 * 5,
		WriteCost:   63 * 20000,
		TotalCost:   63*11000*5 + 63*20000,
	}, cost)

	explicit, err := a.CalculateStorageCost(t.Context(), 1024, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(63*11000*2), explicit.StorageCost)
	require.Equal(t, cost.WriteCost, explicit.WriteCost)
	require.Zero(t, relay.Requests())
}

func TestEncodedBlobLength(t *testing.T) {
	n, err := storage.EncodedBlobLength(1024, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(66_034_000), n)

	empty, err := storage.EncodedBlobLength(0, 1000)
	require.NoError(t, err)
	require.Equal(t, n, empty)

	_, err = storage.EncodedBlobLength(10, 0)
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	network := testNetwork()
	a := newAdapter(t, testutil.NewRelay(t), network, true)
	upload := model.UploadResult{BlobID: "b", StartEpoch: 100, EndEpoch: 105}

	st, err := a.Status(t.Context(), upload)
	require.NoError(t, err)
	require.False(t, st.Expired)
	require.Equal(t, uint64(5), st.RemainingEpochs)

	network.state.Epoch = 105
	st, err = a.Status(t.Context(), upload)
	require.NoError(t, err)
	require.True(t, st.Expired)
	require.Zero(t, st.RemainingEpochs)
}
