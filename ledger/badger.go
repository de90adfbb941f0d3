/***************************************************************
 *
 * Copyright (C) 2025, OpenAddresses
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package ledger

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const usageKeyPrefix = "usage/"

// BadgerStore persists usage records on disk so quota state survives a
// process restart.  Records are stored as their JSON wire form.
type BadgerStore struct {
	db        *badger.DB
	closeOnce sync.Once
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open usage ledger at %s", path)
	}
	return &BadgerStore{db: db}, nil
}

func usageKey(key string) []byte {
	return []byte(usageKeyPrefix + key)
}

func (b *BadgerStore) Get(_ context.Context, key string) (Record, bool, error) {
	var rec Record
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usageKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(val, &rec); err != nil {
			// A corrupt record is treated as absent; the next Put overwrites it.
			log.Warningln("Discarding corrupt usage record for", key, ":", err)
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "usage ledger read failed for %s", key)
	}
	return rec, found, nil
}

func (b *BadgerStore) Put(_ context.Context, key string, rec Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "unable to serialize usage record")
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(usageKey(key), val)
	})
	return errors.Wrapf(err, "usage ledger write failed for %s", key)
}

func (b *BadgerStore) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.db.Close()
	})
	return err
}
