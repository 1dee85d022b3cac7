// Package storage holds the durable collaborators: the bounded message
// ledger, attachment bindings, and the channel directory, all on one
// badger store.
package storage

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// Open opens the badger store at dir with badger's chatter routed into
// zerolog.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dir, err)
	}
	return db, nil
}

type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any) {
	log.Error().Str("module", "storage.badger").Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Warningf(f string, v ...any) {
	log.Warn().Str("module", "storage.badger").Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(f string, v ...any) {
	log.Debug().Str("module", "storage.badger").Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Debugf(f string, v ...any) {
	log.Debug().Str("module", "storage.badger").Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}
