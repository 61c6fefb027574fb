package pubsub

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

var ErrSubscriptionNotFound = ports.ErrSubscriptionNotFound

type store struct {
	db *badgerhold.Store
}

func newStore(baseDbDir string, logger badger.Logger) (*store, error) {
	opts := badger.DefaultOptions("")
	if len(baseDbDir) > 0 {
		opts = badger.DefaultOptions(filepath.Join(baseDbDir, "webhooks"))
	} else {
		opts.InMemory = true
	}
	opts.Logger = logger

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, fmt.Errorf("opening webhooks db: %w", err)
	}
	return &store{db}, nil
}

func (s *store) add(sub Subscription) error {
	return s.db.Insert(sub.ID, sub)
}

func (s *store) remove(id string) (*Subscription, error) {
	var sub Subscription
	if err := s.db.Get(id, &sub); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if err := s.db.Delete(id, Subscription{}); err != nil {
		return nil, err
	}
	return &sub, nil
}

// find returns the subscriptions for the given topic, or all of them for the
// unspecified one, sorted by creation time.
func (s *store) find(topic string) (subscriptions, error) {
	var query *badgerhold.Query
	if topic != "" {
		query = badgerhold.Where("Event").Eq(topic).Index("Event")
	} else {
		query = &badgerhold.Query{}
	}

	var subs []Subscription
	if err := s.db.Find(&subs, query.SortBy("CreatedAt", "ID")); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *store) close() error {
	return s.db.Close()
}
