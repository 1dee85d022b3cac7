package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

// How long an accepted temp id stays eligible for replace-not-append.
const pendingTTL = time.Minute

// Ledger is the bounded per-channel message store. Keys are formatted as
// "msg:{serverId}:{channelId}:{timestamp_padded}:{seq_padded}" so that a
// prefix scan yields chronological order, with an in-process sequence
// number breaking ties between appends in the same nanosecond.
type Ledger struct {
	db           *badger.DB
	channels     core.ChannelDirectory
	maxRetention int

	seq atomic.Uint64

	// pending maps room|tempId to the stored key so a later out-of-band
	// store of the same logical send overwrites instead of duplicating.
	mu      sync.Mutex
	pending map[string]pendingRef
}

type pendingRef struct {
	key []byte
	at  time.Time
}

func NewLedger(db *badger.DB, channels core.ChannelDirectory, maxRetention int) *Ledger {
	return &Ledger{
		db:           db,
		channels:     channels,
		maxRetention: maxRetention,
		pending:      make(map[string]pendingRef),
	}
}

func msgPrefix(room domain.Room) []byte {
	return fmt.Appendf(nil, "msg:%s:%s:", room.ServerID, room.ChannelID)
}

func (l *Ledger) msgKey(room domain.Room, at time.Time) []byte {
	return fmt.Appendf(nil, "msg:%s:%s:%019d:%06d",
		room.ServerID, room.ChannelID, at.UnixNano(), l.seq.Add(1)%1_000_000)
}

type attachmentBinding struct {
	Owner     domain.UserID `json:"owner"`
	MessageID string        `json:"messageId"`
}

func attachmentKey(id string) []byte {
	return fmt.Appendf(nil, "att:%s", id)
}

// Append persists a draft for room, enforcing the retention cap in the
// same transaction as the insert. A client temp id is honored as the
// canonical message id; a temp id already accepted for this room makes
// the append overwrite the earlier row instead of adding a second one.
func (l *Ledger) Append(ctx context.Context, room domain.Room, author domain.Author, draft domain.Draft) (domain.Message, error) {
	known, err := l.channels.Exists(ctx, room.ServerID, room.ChannelID)
	if err != nil {
		return domain.Message{}, err
	}
	if !known {
		return domain.Message{}, core.ErrChannelNotFound
	}

	id := draft.TempID
	if id == "" {
		id = uuid.NewString()
	}
	transport := draft.Transport
	if transport == "" {
		transport = domain.TransportServer
	}
	msg := domain.Message{
		ID:          id,
		Room:        room,
		Author:      author,
		Blocks:      draft.NormalizedBlocks(),
		Attachments: draft.Attachments,
		Mentions:    draft.Mentions,
		Timestamp:   time.Now().UTC(),
		Transport:   transport,
		System:      draft.System,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prunePending()

	pkey := room.Key() + "|" + draft.TempID
	var replaceKey []byte
	if draft.TempID != "" {
		if ref, ok := l.pending[pkey]; ok {
			replaceKey = ref.key
		}
	}

	var insertedKey []byte
	err = l.db.Update(func(txn *badger.Txn) error {
		if err := l.bindAttachments(txn, &msg); err != nil {
			return err
		}

		if replaceKey != nil {
			// Same logical send: keep the original slot and timestamp so
			// ordering and retention accounting are untouched.
			item, err := txn.Get(replaceKey)
			switch {
			case err == nil:
				var old domain.Message
				_ = item.Value(func(v []byte) error { return cbor.Unmarshal(v, &old) })
				if !old.Timestamp.IsZero() {
					msg.Timestamp = old.Timestamp
				}
				val, err := cbor.Marshal(&msg)
				if err != nil {
					return err
				}
				return txn.Set(replaceKey, val)
			case errors.Is(err, badger.ErrKeyNotFound):
				// The original row was already evicted; fall through to a
				// fresh insert so the retention count stays honest.
				replaceKey = nil
			default:
				return err
			}
		}

		keys, err := roomKeys(txn, room)
		if err != nil {
			return err
		}
		if surplus := len(keys) + 1 - l.maxRetention; surplus > 0 {
			for _, k := range keys[:surplus] {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		val, err := cbor.Marshal(&msg)
		if err != nil {
			return err
		}
		insertedKey = l.msgKey(room, msg.Timestamp)
		return txn.Set(insertedKey, val)
	})
	if err != nil {
		if errors.Is(err, core.ErrAttachmentConflict) {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}

	if draft.TempID != "" {
		if replaceKey != nil {
			delete(l.pending, pkey)
		} else {
			l.pending[pkey] = pendingRef{key: insertedKey, at: time.Now()}
		}
	}
	return msg, nil
}

// Read returns at most min(limit, maxRetention) of the most recent
// messages for room, ordered oldest to newest.
func (l *Ledger) Read(ctx context.Context, room domain.Room, limit int) ([]domain.Message, error) {
	known, err := l.channels.Exists(ctx, room.ServerID, room.ChannelID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, core.ErrChannelNotFound
	}
	if limit <= 0 || limit > l.maxRetention {
		limit = l.maxRetention
	}

	var out []domain.Message
	err = l.db.View(func(txn *badger.Txn) error {
		prefix := msgPrefix(room)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past every possible suffix, then walk backwards.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var msg domain.Message
				if err := cbor.Unmarshal(val, &msg); err != nil {
					return err
				}
				out = append(out, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}

	// Reverse scan produced newest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (l *Ledger) bindAttachments(txn *badger.Txn, msg *domain.Message) error {
	for i := range msg.Attachments {
		ref := &msg.Attachments[i]
		if ref.UploaderID != "" && ref.UploaderID != msg.Author.ID {
			return fmt.Errorf("%w: attachment %s uploaded by %s", core.ErrAttachmentConflict, ref.ID, ref.UploaderID)
		}
		key := attachmentKey(ref.ID)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var bound attachmentBinding
			if err := item.Value(func(v []byte) error { return cbor.Unmarshal(v, &bound) }); err != nil {
				return err
			}
			if bound.MessageID != msg.ID || bound.Owner != msg.Author.ID {
				return fmt.Errorf("%w: attachment %s already bound", core.ErrAttachmentConflict, ref.ID)
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			val, err := cbor.Marshal(attachmentBinding{Owner: msg.Author.ID, MessageID: msg.ID})
			if err != nil {
				return err
			}
			if err := txn.Set(key, val); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// roomKeys lists the live message keys for room, oldest first.
func roomKeys(txn *badger.Txn, room domain.Room) ([][]byte, error) {
	prefix := msgPrefix(room)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func (l *Ledger) prunePending() {
	cutoff := time.Now().Add(-pendingTTL)
	for k, ref := range l.pending {
		if ref.at.Before(cutoff) {
			delete(l.pending, k)
		}
	}
}
