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
	"fmt"
	"maps"
	"sync"

	"github.com/civicweave/ratify/types"
)

// Store holds amendment documents and their change history
type Store interface {
	Create(ctx context.Context, amendment types.AmendmentID, text string, props map[string]string) (Content, error)
	Get(ctx context.Context, amendment types.AmendmentID) (Content, error)
	ApplyDiff(ctx context.Context, amendment types.AmendmentID, diff Diff) (Content, error)
	// History returns the diffs applied after the given version, oldest first
	History(ctx context.Context, amendment types.AmendmentID, since int) ([]Diff, error)
}

func newContent(amendment types.AmendmentID, text string, props map[string]string) Content {
	return Content{
		Amendment:  amendment,
		Text:       text,
		Properties: maps.Clone(props),
		Ref:        ContentRef(text, props),
	}
}

type memoryDocument struct {
	head    Content
	history []Diff
}

// MemoryStore is a Store held in process memory
type MemoryStore struct {
	docs map[types.AmendmentID]*memoryDocument
	mu   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[types.AmendmentID]*memoryDocument),
	}
}

func (m *MemoryStore) Create(
	_ context.Context,
	amendment types.AmendmentID,
	text string,
	props map[string]string,
) (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[amendment]; ok {
		return Content{}, fmt.Errorf("%w: %s", ErrDocumentExists, amendment)
	}
	doc := &memoryDocument{head: newContent(amendment, text, props)}
	m.docs[amendment] = doc
	return cloneContent(doc.head), nil
}

func (m *MemoryStore) Get(
	_ context.Context,
	amendment types.AmendmentID,
) (Content, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[amendment]
	if !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, amendment)
	}
	return cloneContent(doc.head), nil
}

func (m *MemoryStore) ApplyDiff(
	_ context.Context,
	amendment types.AmendmentID,
	diff Diff,
) (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[amendment]
	if !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, amendment)
	}
	next, err := doc.head.Apply(diff)
	if err != nil {
		return Content{}, err
	}
	doc.head = next
	doc.history = append(doc.history, diff.Clone())
	return cloneContent(next), nil
}

func (m *MemoryStore) History(
	_ context.Context,
	amendment types.AmendmentID,
	since int,
) ([]Diff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[amendment]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, amendment)
	}
	if since < 0 {
		since = 0
	}
	if since >= len(doc.history) {
		return nil, nil
	}
	ret := make([]Diff, 0, len(doc.history)-since)
	for _, d := range doc.history[since:] {
		ret = append(ret, d.Clone())
	}
	return ret, nil
}

func cloneContent(c Content) Content {
	c.Properties = maps.Clone(c.Properties)
	return c
}

var _ Store = (*MemoryStore)(nil)
