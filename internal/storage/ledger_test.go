package storage

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

var testRoom = domain.Room{ServerID: "s1", ChannelID: "general"}

func newTestStore(t *testing.T) (*badger.DB, *Directory) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir := NewDirectory(db)
	require.NoError(t, dir.Create(context.Background(), ChannelInfo{
		ServerID: testRoom.ServerID, ChannelID: testRoom.ChannelID, Name: "general",
	}))
	return db, dir
}

func newTestLedger(t *testing.T, maxRetention int) *Ledger {
	t.Helper()
	db, dir := newTestStore(t)
	return NewLedger(db, dir, maxRetention)
}

func author(id string) domain.Author {
	return domain.Author{ID: domain.UserID(id), Name: id}
}

func TestLedger_AppendEvictsOldestFirst(t *testing.T) {
	l := newTestLedger(t, 2)
	ctx := context.Background()

	for _, text := range []string{"A", "B", "C"} {
		_, err := l.Append(ctx, testRoom, author("u1"), domain.Draft{Text: text})
		require.NoError(t, err)
	}

	msgs, err := l.Read(ctx, testRoom, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "B", msgs[0].Blocks[0].Text)
	require.Equal(t, "C", msgs[1].Blocks[0].Text)
}

func TestLedger_RetentionInvariantHoldsAfterEveryAppend(t *testing.T) {
	l := newTestLedger(t, 5)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := l.Append(ctx, testRoom, author("u1"), domain.Draft{Text: "x"})
		require.NoError(t, err)

		msgs, err := l.Read(ctx, testRoom, 100)
		require.NoError(t, err)
		require.LessOrEqual(t, len(msgs), 5)
	}
}

func TestLedger_ReadReturnsOldestToNewest(t *testing.T) {
	l := newTestLedger(t, 10)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := l.Append(ctx, testRoom, author("u1"), domain.Draft{Text: text})
		require.NoError(t, err)
	}

	msgs, err := l.Read(ctx, testRoom, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "two", msgs[0].Blocks[0].Text)
	require.Equal(t, "three", msgs[1].Blocks[0].Text)
}

func TestLedger_TempIDBecomesCanonical(t *testing.T) {
	l := newTestLedger(t, 10)

	msg, err := l.Append(context.Background(), testRoom, author("u1"), domain.Draft{
		TempID: "temp-123", Text: "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "temp-123", msg.ID)
}

func TestLedger_StoreWithKnownTempIDReplacesNotAppends(t *testing.T) {
	l := newTestLedger(t, 10)
	ctx := context.Background()

	first, err := l.Append(ctx, testRoom, author("u1"), domain.Draft{
		TempID: "temp-1", Text: "optimistic",
	})
	require.NoError(t, err)

	// Same logical send arrives again as an out-of-band p2p store.
	second, err := l.Append(ctx, testRoom, author("u1"), domain.Draft{
		TempID: "temp-1", Text: "optimistic", Transport: domain.TransportP2P,
	})
	require.NoError(t, err)

	msgs, err := l.Read(ctx, testRoom, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, domain.TransportP2P, msgs[0].Transport)
	require.Equal(t, first.Timestamp, second.Timestamp, "replacement keeps the original slot")
}

func TestLedger_NormalizesRawTextIntoParagraphBlock(t *testing.T) {
	l := newTestLedger(t, 10)

	msg, err := l.Append(context.Background(), testRoom, author("u1"), domain.Draft{Text: "plain"})
	require.NoError(t, err)
	require.Len(t, msg.Blocks, 1)
	require.Equal(t, domain.BlockParagraph, msg.Blocks[0].Kind)
	require.Equal(t, "plain", msg.Blocks[0].Text)
}

func TestLedger_AttachmentConflictIsAtomic(t *testing.T) {
	l := newTestLedger(t, 10)
	ctx := context.Background()

	ref := domain.AttachmentRef{ID: "att-1", UploaderID: "u1"}
	_, err := l.Append(ctx, testRoom, author("u1"), domain.Draft{
		Text: "with file", Attachments: []domain.AttachmentRef{ref},
	})
	require.NoError(t, err)

	// Rebinding the attachment to a different message must fail without
	// persisting anything.
	_, err = l.Append(ctx, testRoom, author("u1"), domain.Draft{
		Text: "steals file", Attachments: []domain.AttachmentRef{ref},
	})
	require.ErrorIs(t, err, core.ErrAttachmentConflict)

	msgs, err := l.Read(ctx, testRoom, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestLedger_AttachmentUploaderMismatch(t *testing.T) {
	l := newTestLedger(t, 10)

	_, err := l.Append(context.Background(), testRoom, author("u2"), domain.Draft{
		Text:        "not mine",
		Attachments: []domain.AttachmentRef{{ID: "att-2", UploaderID: "u1"}},
	})
	require.ErrorIs(t, err, core.ErrAttachmentConflict)
}

func TestLedger_UnknownChannel(t *testing.T) {
	l := newTestLedger(t, 10)
	ctx := context.Background()
	nowhere := domain.Room{ServerID: "s1", ChannelID: "missing"}

	_, err := l.Append(ctx, nowhere, author("u1"), domain.Draft{Text: "x"})
	require.ErrorIs(t, err, core.ErrChannelNotFound)

	_, err = l.Read(ctx, nowhere, 10)
	require.ErrorIs(t, err, core.ErrChannelNotFound)
}
