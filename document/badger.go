// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/civicweave/ratify/types"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

const DefaultGCInterval = 5 * time.Minute

type BadgerStoreConfig struct {
	Logger *slog.Logger
	// DataDir is the badger directory. Empty keeps the store in memory.
	DataDir    string
	GCInterval time.Duration
}

// BadgerStore is a Store backed by badger. Text bodies are zstd-compressed
// and keyed by content ref, so identical versions share storage.
type BadgerStore struct {
	db       *badger.DB
	logger   *slog.Logger
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	gcTicker *time.Ticker
	gcStopCh chan struct{}
	gcWg     sync.WaitGroup
	writeMu  sync.Mutex
}

type headRecord struct {
	Version    int               `json:"version"`
	Ref        string            `json:"ref"`
	Properties map[string]string `json:"properties,omitempty"`
}

func NewBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &BadgerStore{
		logger: cfg.Logger.With("component", "document"),
	}
	opts := badger.DefaultOptions(cfg.DataDir).
		WithLogger(&badgerLogger{logger: s.logger}).
		WithLoggingLevel(badger.WARNING)
	if cfg.DataDir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document dir: %w", err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	s.db = db
	if s.encoder, err = zstd.NewWriter(nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	if s.decoder, err = zstd.NewReader(nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.DataDir != "" {
		interval := cfg.GCInterval
		if interval <= 0 {
			interval = DefaultGCInterval
		}
		s.gcTicker = time.NewTicker(interval)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.valueLogGC()
	}
	return s, nil
}

func (s *BadgerStore) valueLogGC() {
	defer s.gcWg.Done()
	for {
		select {
		case <-s.gcTicker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("value log GC failed", "error", err)
				}
				break
			}
		case <-s.gcStopCh:
			return
		}
	}
}

// Close stops background GC and closes the database
func (s *BadgerStore) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		close(s.gcStopCh)
		s.gcWg.Wait()
		s.gcTicker = nil
	}
	s.decoder.Close()
	return errors.Join(s.encoder.Close(), s.db.Close())
}

func headKey(amendment types.AmendmentID) []byte {
	return []byte("doc/" + string(amendment) + "/head")
}

func textKey(amendment types.AmendmentID, ref string) []byte {
	return []byte("doc/" + string(amendment) + "/text/" + ref)
}

func diffKey(amendment types.AmendmentID, index int) []byte {
	return fmt.Appendf(nil, "doc/%s/diff/%010d", amendment, index)
}

func diffPrefix(amendment types.AmendmentID) []byte {
	return []byte("doc/" + string(amendment) + "/diff/")
}

func (s *BadgerStore) Create(
	_ context.Context,
	amendment types.AmendmentID,
	text string,
	props map[string]string,
) (Content, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	content := newContent(amendment, text, props)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(headKey(amendment)); err == nil {
			return fmt.Errorf("%w: %s", ErrDocumentExists, amendment)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return s.writeHead(txn, content)
	})
	if err != nil {
		return Content{}, err
	}
	return content, nil
}

func (s *BadgerStore) writeHead(txn *badger.Txn, c Content) error {
	head, err := json.Marshal(headRecord{
		Version:    c.Version,
		Ref:        c.Ref,
		Properties: c.Properties,
	})
	if err != nil {
		return err
	}
	key := textKey(c.Amendment, c.Ref)
	if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
		if err := txn.Set(key, s.encoder.EncodeAll([]byte(c.Text), nil)); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	return txn.Set(headKey(c.Amendment), head)
}

func (s *BadgerStore) readHead(txn *badger.Txn, amendment types.AmendmentID) (Content, error) {
	item, err := txn.Get(headKey(amendment))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Content{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, amendment)
		}
		return Content{}, err
	}
	var head headRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &head)
	}); err != nil {
		return Content{}, fmt.Errorf("decode document head: %w", err)
	}
	item, err = txn.Get(textKey(amendment, head.Ref))
	if err != nil {
		return Content{}, fmt.Errorf("read document text %s: %w", head.Ref, err)
	}
	var text []byte
	if err := item.Value(func(val []byte) error {
		var derr error
		text, derr = s.decoder.DecodeAll(val, nil)
		return derr
	}); err != nil {
		return Content{}, fmt.Errorf("decompress document text: %w", err)
	}
	return Content{
		Amendment:  amendment,
		Text:       string(text),
		Properties: head.Properties,
		Version:    head.Version,
		Ref:        head.Ref,
	}, nil
}

func (s *BadgerStore) Get(
	_ context.Context,
	amendment types.AmendmentID,
) (Content, error) {
	var ret Content
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ret, err = s.readHead(txn, amendment)
		return err
	})
	return ret, err
}

func (s *BadgerStore) ApplyDiff(
	_ context.Context,
	amendment types.AmendmentID,
	diff Diff,
) (Content, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var ret Content
	err := s.db.Update(func(txn *badger.Txn) error {
		head, err := s.readHead(txn, amendment)
		if err != nil {
			return err
		}
		next, err := head.Apply(diff)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(diff)
		if err != nil {
			return err
		}
		if err := txn.Set(diffKey(amendment, head.Version), encoded); err != nil {
			return err
		}
		if err := s.writeHead(txn, next); err != nil {
			return err
		}
		ret = next
		return nil
	})
	if err != nil {
		return Content{}, err
	}
	s.logger.Debug(
		"applied diff",
		"amendment", amendment,
		"version", ret.Version,
		"ref", ret.Ref,
	)
	return ret, nil
}

func (s *BadgerStore) History(
	_ context.Context,
	amendment types.AmendmentID,
	since int,
) ([]Diff, error) {
	var ret []Diff
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(headKey(amendment)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrDocumentNotFound, amendment)
			}
			return err
		}
		prefix := diffPrefix(amendment)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(diffKey(amendment, max(since, 0))); it.ValidForPrefix(prefix); it.Next() {
			var d Diff
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return fmt.Errorf("decode diff: %w", err)
			}
			ret = append(ret, d)
		}
		return nil
	})
	return ret, err
}

// badgerLogger routes badger's printf-style logging through slog
type badgerLogger struct {
	logger *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Info(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

var _ Store = (*BadgerStore)(nil)
