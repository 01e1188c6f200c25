package ledger_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/failure"
	"github.com/earnout-labs/dealvault/pkg/internal/testutil"
	"github.com/earnout-labs/dealvault/pkg/ledger"
	"github.com/earnout-labs/dealvault/pkg/model"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

const dealID = "0x00000000000000000000000000000000000000000000000000000000000000d1"

var participants = testutil.Participants{Buyer: "0xb0", Seller: "0x5e", Auditor: "0xa0"}

func newAdapter(t *testing.T, node *testutil.LedgerNode, opts ...ledger.Option) *ledger.Adapter {
	t.Helper()
	client, err := sui.NewClient(t.Context(), node.URL(), sui.WithMaxTries(1))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	a, err := ledger.New(client, opts...)
	require.NoError(t, err)
	return a
}

func TestGetDeal(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	node.PutDeal(dealID, participants, map[string]any{
		"blob_id":     "blob-1",
		"period_id":   "2026-Q1",
		"data_type":   "revenue",
		"size":        "2048",
		"uploader":    "0x5e",
		"uploaded_at": "1767225600000",
	})
	a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))

	deal, err := a.GetDeal(t.Context(), dealID)
	require.NoError(t, err)
	require.Equal(t, "0xb0", deal.Buyer)
	require.Equal(t, model.DealStatusActive, deal.Status)
	require.Equal(t, uint64(1000000), deal.KPITarget)
	require.Equal(t, uint64(1500), deal.OverheadAllocation)
	require.Len(t, deal.Blobs, 1)
	require.Equal(t, uint64(2048), deal.Blobs[0].Size)
	require.Equal(t, time.UnixMilli(1767225600000).UTC(), deal.Blobs[0].UploadedAt)

	_, err = a.GetDeal(t.Context(), "0xmissing")
	require.ErrorIs(t, err, ledger.ErrDealNotFound)
	require.True(t, failure.IsKind(err, failure.KindNetwork))
}

func TestBlobReferencesNormalizeNamingVariants(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	snake := map[string]any{
		"blob_id":     "blob-1",
		"period_id":   "2026-Q1",
		"data_type":   "revenue",
		"size":        "10",
		"uploader":    "0x5e",
		"uploaded_at": "1000",
	}
	camel := map[string]any{
		"blobId":     "blob-1",
		"periodId":   "2026-Q1",
		"dataType":   "revenue",
		"size":       "10",
		"uploader":   "0x5e",
		"uploadedAt": "1000",
	}
	node.PutDeal("0xsnake", participants, snake)
	node.PutDeal("0xcamel", participants, camel)
	a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))

	fromSnake, err := a.GetDealBlobReferences(t.Context(), "0xsnake")
	require.NoError(t, err)
	fromCamel, err := a.GetDealBlobReferences(t.Context(), "0xcamel")
	require.NoError(t, err)
	require.Equal(t, fromSnake, fromCamel)
	require.Len(t, fromSnake, 1)

	t.Run("snake case wins when both are present", func(t *testing.T) {
		node.PutDeal("0xboth", participants, map[string]any{"blob_id": "snake", "blobId": "camel"})
		refs, err := a.GetDealBlobReferences(t.Context(), "0xboth")
		require.NoError(t, err)
		require.Equal(t, "snake", refs[0].BlobID)
	})

	t.Run("references without a blob id are dropped", func(t *testing.T) {
		node.PutDeal("0xempty", participants, map[string]any{"blob_id": ""}, map[string]any{"blob_id": "kept"})
		ids, err := a.GetDealBlobIDs(t.Context(), "0xempty")
		require.NoError(t, err)
		require.Equal(t, []string{"kept"}, ids)
	})
}

func TestBlobQueriesEmptyPolicy(t *testing.T) {
	node := testutil.NewLedgerNode(t)

	t.Run("not configured", func(t *testing.T) {
		a := newAdapter(t, node)
		require.False(t, a.Configured())
		ids, err := a.GetDealBlobIDs(t.Context(), dealID)
		require.NoError(t, err)
		require.Empty(t, ids)
		refs, err := a.GetDealBlobReferences(t.Context(), dealID)
		require.NoError(t, err)
		require.Empty(t, refs)
		require.Zero(t, node.Calls("sui_getObject"))
	})

	t.Run("no blob list field", func(t *testing.T) {
		node.PutObject("0xbare", testutil.DealType, map[string]any{"buyer": "0xb0"})
		a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))
		ids, err := a.GetDealBlobIDs(t.Context(), "0xbare")
		require.NoError(t, err)
		require.Empty(t, ids)
	})

	t.Run("query failure is a network error", func(t *testing.T) {
		node.FailObject("0xbroken")
		a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))
		_, err := a.GetDealBlobIDs(t.Context(), "0xbroken")
		require.True(t, failure.IsKind(err, failure.KindNetwork))
	})
}

func TestVerifyDealParticipant(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	node.PutDeal(dealID, participants)

	t.Run("unconfigured allows everyone", func(t *testing.T) {
		a := newAdapter(t, node)
		for _, addr := range []string{"0xb0", "0xff", "", "anything"} {
			require.True(t, a.VerifyDealParticipant(t.Context(), dealID, addr), addr)
		}
	})

	t.Run("membership", func(t *testing.T) {
		a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))
		require.True(t, a.VerifyDealParticipant(t.Context(), dealID, "0xB0"))
		require.True(t, a.VerifyDealParticipant(t.Context(), dealID, "0x5e"))
		require.True(t, a.VerifyDealParticipant(t.Context(), dealID, "0xa0"))
		require.False(t, a.VerifyDealParticipant(t.Context(), dealID, "0xff"))
	})

	t.Run("query failure denies", func(t *testing.T) {
		a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))
		node.SetDown(true)
		defer node.SetDown(false)
		require.False(t, a.VerifyDealParticipant(t.Context(), dealID, "0xb0"))
	})

	t.Run("missing deal denies", func(t *testing.T) {
		a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))
		require.False(t, a.VerifyDealParticipant(t.Context(), "0xnodeal", "0xb0"))
	})
}

func TestGetParticipantRole(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	node.PutDeal(dealID, participants)
	a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))

	role, ok, err := a.GetParticipantRole(t.Context(), dealID, "0xa0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.RoleAuditor, role)

	_, ok, err = a.GetParticipantRole(t.Context(), dealID, "0x01")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetParticipantRoles(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	node.PutDeal(dealID, testutil.Participants{Buyer: "0xb0", Seller: "0x5e", Auditor: "0xb0"})
	a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))

	roles, err := a.GetParticipantRoles(t.Context(), dealID, "0xB0")
	require.NoError(t, err)
	require.Equal(t, []model.Role{model.RoleBuyer, model.RoleAuditor}, roles)

	roles, err = a.GetParticipantRoles(t.Context(), dealID, "0x01")
	require.NoError(t, err)
	require.Empty(t, roles)

	_, err = newAdapter(t, node).GetParticipantRoles(t.Context(), dealID, "0xb0")
	require.ErrorIs(t, err, ledger.ErrNotConfigured)
}

func TestGetDealAuditRecords(t *testing.T) {
	t.Run("skips records that fail to load", func(t *testing.T) {
		node := testutil.NewLedgerNode(t)
		for i := range 5 {
			node.PutAuditRecord(fmt.Sprintf("0xr%d", i), dealID, fmt.Sprintf("blob-%d", i), uint64(1000+i))
		}
		node.FailObject("0xr2")
		a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))

		records, err := a.GetDealAuditRecords(t.Context(), dealID)
		require.NoError(t, err)
		require.Len(t, records, 4)
		// newest first
		require.Equal(t, "0xr4", records[0].ID)
		require.Equal(t, "0xr0", records[3].ID)
		for _, r := range records {
			require.NotEqual(t, "0xr2", r.ID)
			require.Nil(t, r.Auditor)
			require.Nil(t, r.AuditedAt)
		}
	})

	t.Run("filters by deal and bounds the scan window", func(t *testing.T) {
		node := testutil.NewLedgerNode(t)
		node.PutAuditRecord("0xold", dealID, "blob-old", 1)
		for i := range 120 {
			node.PutAuditRecord(fmt.Sprintf("0xo%d", i), "0xotherdeal", "x", 2)
		}
		node.PutAuditRecord("0xnew", dealID, "blob-new", 3)
		a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID), ledger.WithEventWindow(100))

		records, err := a.GetDealAuditRecords(t.Context(), dealID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, "blob-new", records[0].BlobID)
		require.Equal(t, 2, node.Calls("suix_queryEvents"))
	})

	t.Run("event scan failure is a network error", func(t *testing.T) {
		node := testutil.NewLedgerNode(t)
		node.SetDown(true)
		a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))
		_, err := a.GetDealAuditRecords(t.Context(), dealID)
		require.True(t, failure.IsKind(err, failure.KindNetwork))
	})
}

func TestGetBlobAuditRecord(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	node.PutAuditRecord("0xr1", dealID, "blob-1", 1)
	node.PutAuditRecord("0xr2", dealID, "blob-2", 2)
	a := newAdapter(t, node, ledger.WithPackageID(testutil.PackageID))

	rec, err := a.GetBlobAuditRecord(t.Context(), dealID, "blob-2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "0xr2", rec.ID)

	rec, err = a.GetBlobAuditRecord(t.Context(), dealID, "blob-9")
	require.NoError(t, err)
	require.Nil(t, rec)

	node.SetDown(true)
	rec, err = a.GetBlobAuditRecord(t.Context(), dealID, "blob-1")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestSystemState(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	node.PutSystemObject(42, 1000, 11000, 20000)

	a := newAdapter(t, node, ledger.WithSystemObjectID(testutil.SystemObjectID))
	state, err := a.SystemState(t.Context())
	require.NoError(t, err)
	require.Equal(t, model.NetworkState{
		Epoch:               42,
		NShards:             1000,
		StoragePricePerUnit: 11000,
		WritePricePerUnit:   20000,
	}, state)

	unset := newAdapter(t, node)
	_, err = unset.SystemState(t.Context())
	require.True(t, failure.IsKind(err, failure.KindConfiguration))
}

func TestResolveKeyServers(t *testing.T) {
	node := testutil.NewLedgerNode(t)
	pk := []byte{1, 2, 3, 4}
	node.PutKeyServer("0xk1", "http://ks1.example", pk)
	node.PutKeyServer("0xk2", "http://ks2.example", pk)
	a := newAdapter(t, node)

	servers, err := a.ResolveKeyServers(t.Context(), []string{"0xk2", "0xk1"})
	require.NoError(t, err)
	require.Len(t, servers, 2)
	require.Equal(t, "0xk2", servers[0].ObjectID)
	require.Equal(t, "http://ks2.example", servers[0].URL)
	require.Equal(t, pk, servers[1].PublicKey)

	_, err = a.ResolveKeyServers(t.Context(), []string{"0xk1", "0xnope"})
	require.True(t, failure.IsKind(err, failure.KindNetwork))
}
