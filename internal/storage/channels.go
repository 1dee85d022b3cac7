package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"peerchat/internal/core"
)

// ChannelInfo is the directory record for one channel. Channel CRUD is
// owned by the management plane; this layer only needs existence checks
// and a seed path for fresh deployments.
type ChannelInfo struct {
	ServerID  string    `json:"serverId"`
	ChannelID string    `json:"channelId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type Directory struct {
	db *badger.DB
}

func NewDirectory(db *badger.DB) *Directory {
	return &Directory{db: db}
}

func channelKey(serverID, channelID string) []byte {
	return fmt.Appendf(nil, "chan:%s:%s", serverID, channelID)
}

func (d *Directory) Exists(ctx context.Context, serverID, channelID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(channelKey(serverID, channelID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	return true, nil
}

func (d *Directory) Create(ctx context.Context, info ChannelInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}
	val, err := cbor.Marshal(info)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(channelKey(info.ServerID, info.ChannelID), val)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageFailure, err)
	}
	return nil
}

// List returns the channels known for one server, in key order.
func (d *Directory) List(ctx context.Context, serverID string) ([]ChannelInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := fmt.Appendf(nil, "chan:%s:", serverID)
	var out []ChannelInfo
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var info ChannelInfo
				if err := cbor.Unmarshal(val, &info); err != nil {
					return err
				}
				out = append(out, info)
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
	return out, nil
}
