package journal_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/pkg/bus"
	"github.com/earnout-labs/dealvault/pkg/bus/events"
	"github.com/earnout-labs/dealvault/pkg/journal"
)

func openJournal(t *testing.T, opts ...journal.Option) *journal.Journal {
	t.Helper()
	j, err := journal.Open(t.Context(), filepath.Join(t.TempDir(), "journal.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndGet(t *testing.T) {
	j := openJournal(t)
	at := time.Date(2026, 9, 30, 8, 0, 0, 0, time.UTC)

	rec, err := j.Record(t.Context(), journal.Entry{
		BlobID:               "blob-1",
		DealID:               "0xd1",
		PeriodID:             "2026-Q3",
		DataType:             "revenue",
		Uploader:             "0x5e",
		Size:                 4096,
		Commitment:           "walrus:0xabc",
		EncryptionCommitment: "sha256:00ff",
		PolicyID:             "0xaa::earnout",
		StartEpoch:           10,
		EndEpoch:             15,
		UploadedAt:           at,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	got, err := j.Get(t.Context(), "blob-1")
	require.NoError(t, err)
	require.Equal(t, rec, *got)

	missing, err := j.Get(t.Context(), "blob-2")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListByDeal(t *testing.T) {
	j := openJournal(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, deal := range []string{"0xd1", "0xd2", "0xd1"} {
		_, err := j.Record(t.Context(), journal.Entry{
			BlobID:     string(rune('a' + i)),
			DealID:     deal,
			Commitment: "walrus:x",
			UploadedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	d1, err := j.List(t.Context(), "0xd1")
	require.NoError(t, err)
	require.Len(t, d1, 2)
	require.Equal(t, "c", d1[0].BlobID)
	require.Equal(t, "a", d1[1].BlobID)
	require.Empty(t, d1[0].PolicyID)

	all, err := j.List(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRecordRequiresBlobID(t *testing.T) {
	j := openJournal(t)
	_, err := j.Record(t.Context(), journal.Entry{DealID: "0xd1"})
	require.Error(t, err)
}

func TestRecordPublishesEvent(t *testing.T) {
	b := bus.New()
	var got []events.JournalEvent
	require.NoError(t, b.Subscribe(events.TopicJournal(), func(e events.JournalEvent) {
		got = append(got, e)
	}))
	j := openJournal(t, journal.WithEventBus(b))

	rec, err := j.Record(t.Context(), journal.Entry{BlobID: "blob-1", DealID: "0xd1", Commitment: "walrus:x", EndEpoch: 7})
	require.NoError(t, err)
	require.Equal(t, []events.JournalEvent{{ID: rec.ID, BlobID: "blob-1", DealID: "0xd1", EndEpoch: 7}}, got)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(t.Context(), path)
	require.NoError(t, err)
	_, err = j.Record(t.Context(), journal.Entry{BlobID: "blob-1", DealID: "0xd1", Commitment: "walrus:x"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = journal.Open(t.Context(), path)
	require.NoError(t, err)
	defer j.Close()
	got, err := j.Get(t.Context(), "blob-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}
