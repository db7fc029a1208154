/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package control

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
	"sigs.k8s.io/yaml"

	"jinr.ru/greenlab/go-router/pkg/config"
	"jinr.ru/greenlab/go-router/pkg/log"
	"jinr.ru/greenlab/go-router/pkg/router"
	"jinr.ru/greenlab/go-router/pkg/srv"
)

// EventState keeps the router event history in a bbolt database
type EventState struct {
	context.Context
	DB *bbolt.DB
}

func NewEventState(ctx context.Context, cfg *config.Config) (*EventState, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(cfg.DBPath, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(EventsBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &EventState{
		Context: ctx,
		DB:      db,
	}, nil
}

func uint64ToByte(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Close ...
func (s *EventState) Close() {
	s.DB.Close()
}

// Append stores the events of one cycle in a single transaction
func (s *EventState) Append(events []router.Event) error {
	if len(events) == 0 {
		return nil
	}
	now := srv.Now()
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(EventsBucket))
		if b == nil {
			return fmt.Errorf("Bucket not found: %s", EventsBucket)
		}
		for _, e := range events {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(&srv.EventRecord{Event: e, Time: now})
			if err != nil {
				return err
			}
			if err := b.Put(uint64ToByte(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Events returns up to limit most recent events, oldest first
func (s *EventState) Events(limit int) ([]*srv.EventRecord, error) {
	log.Debug("Getting %d most recent events", limit)
	var records []*srv.EventRecord
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(EventsBucket))
		if b == nil {
			return fmt.Errorf("Bucket not found: %s", EventsBucket)
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			record := &srv.EventRecord{}
			if err := yaml.Unmarshal(v, record); err != nil {
				log.Error("Error while unmarshalling event %x: %s", k, err)
				return err
			}
			records = append(records, record)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Count returns the number of stored events
func (s *EventState) Count() (int, error) {
	var n int
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(EventsBucket))
		if b == nil {
			return fmt.Errorf("Bucket not found: %s", EventsBucket)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}
