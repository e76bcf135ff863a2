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
	"testing"

	"github.com/civicweave/ratify/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func region(start, end int) *Region {
	return &Region{Start: start, End: end}
}

func TestRegionOverlaps(t *testing.T) {
	tests := []struct {
		a, b Region
		want bool
	}{
		{Region{0, 5}, Region{5, 10}, false},
		{Region{0, 6}, Region{5, 10}, true},
		{Region{3, 4}, Region{0, 10}, true},
		{Region{5, 5}, Region{5, 5}, true},
		{Region{5, 5}, Region{6, 6}, false},
		{Region{5, 5}, Region{0, 5}, false},
		{Region{5, 5}, Region{5, 8}, false},
		{Region{6, 6}, Region{5, 8}, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.a.Overlaps(tc.b), "%v vs %v", tc.a, tc.b)
		assert.Equal(t, tc.want, tc.b.Overlaps(tc.a), "%v vs %v", tc.b, tc.a)
	}
}

func TestContentApply(t *testing.T) {
	base := newContent("a1", "The fee is 10 units.", nil)
	next, err := base.Apply(Diff{Region: region(11, 13), Replacement: "12"})
	require.NoError(t, err)
	assert.Equal(t, "The fee is 12 units.", next.Text)
	assert.Equal(t, 1, next.Version)
	assert.NotEqual(t, base.Ref, next.Ref)

	props, err := next.Apply(Diff{Properties: map[string]string{"category": "finance"}})
	require.NoError(t, err)
	assert.Equal(t, "finance", props.Properties["category"])
	assert.Equal(t, next.Text, props.Text)
	assert.Nil(t, next.Properties, "source content untouched")

	cleared, err := props.Apply(Diff{Properties: map[string]string{"category": ""}})
	require.NoError(t, err)
	assert.Empty(t, cleared.Properties)
	assert.Equal(t, next.Ref, cleared.Ref)

	_, err = base.Apply(Diff{Region: region(15, 40), Replacement: "x"})
	require.ErrorIs(t, err, ErrRegionOutOfRange)
	_, err = base.Apply(Diff{})
	require.Error(t, err)
}

func TestDiffRebase(t *testing.T) {
	applied := []Diff{
		{Region: region(0, 3), Replacement: "Every"},
		{Properties: map[string]string{"title": "Fees"}},
	}
	later := Diff{Region: region(10, 12), Replacement: "twelve"}
	rebased, err := later.Rebase(applied)
	require.NoError(t, err)
	assert.Equal(t, Region{12, 14}, *rebased.Region)
	assert.Equal(t, Region{10, 12}, *later.Region, "original diff not mutated")

	before := Diff{Region: region(20, 20), Replacement: "!"}
	rebased, err = before.Rebase([]Diff{{Region: region(25, 30)}})
	require.NoError(t, err)
	assert.Equal(t, Region{20, 20}, *rebased.Region, "later edits do not shift")

	_, err = Diff{Region: region(1, 4), Replacement: "x"}.Rebase(applied)
	require.ErrorIs(t, err, ErrOverlap)
	_, err = Diff{Properties: map[string]string{"title": "Dues"}}.Rebase(applied)
	require.ErrorIs(t, err, ErrOverlap)
}

func TestContentRefDeterministic(t *testing.T) {
	a := ContentRef("text", map[string]string{"x": "1", "y": "2"})
	b := ContentRef("text", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, ContentRef("text", nil))
	assert.NotEqual(t, ContentRef("ab", map[string]string{"c": ""}), ContentRef("a", map[string]string{"bc": ""}))
}

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	var amendment types.AmendmentID = "a1"
	created, err := store.Create(ctx, amendment, "Members pay dues.", map[string]string{"kind": "bylaw"})
	require.NoError(t, err)
	assert.Equal(t, 0, created.Version)

	_, err = store.Create(ctx, amendment, "again", nil)
	require.ErrorIs(t, err, ErrDocumentExists)
	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrDocumentNotFound)
	_, err = store.ApplyDiff(ctx, "missing", Diff{Region: region(0, 0)})
	require.ErrorIs(t, err, ErrDocumentNotFound)

	first, err := store.ApplyDiff(ctx, amendment, Diff{Region: region(0, 7), Replacement: "All members"})
	require.NoError(t, err)
	second, err := store.ApplyDiff(ctx, amendment, Diff{Region: region(16, 20), Replacement: "yearly dues"})
	require.NoError(t, err)
	assert.Equal(t, "All members pay yearly dues.", second.Text)
	assert.Equal(t, 2, second.Version)

	_, err = store.ApplyDiff(ctx, amendment, Diff{Region: region(100, 101)})
	require.ErrorIs(t, err, ErrRegionOutOfRange)

	head, err := store.Get(ctx, amendment)
	require.NoError(t, err)
	assert.Equal(t, second, head)
	assert.Equal(t, "bylaw", head.Properties["kind"])

	history, err := store.History(ctx, amendment, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "All members", history[0].Replacement)
	history, err = store.History(ctx, amendment, first.Version)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "yearly dues", history[0].Replacement)
	history, err = store.History(ctx, amendment, 2)
	require.NoError(t, err)
	assert.Empty(t, history)
	_, err = store.History(ctx, "missing", 0)
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestBadgerStoreInMemory(t *testing.T) {
	store, err := NewBadgerStore(BadgerStoreConfig{})
	require.NoError(t, err)
	defer store.Close()
	testStore(t, store)
}

func TestBadgerStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store, err := NewBadgerStore(BadgerStoreConfig{DataDir: dir})
	require.NoError(t, err)
	_, err = store.Create(ctx, "a1", "hello", nil)
	require.NoError(t, err)
	want, err := store.ApplyDiff(ctx, "a1", Diff{Region: region(5, 5), Replacement: " world"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewBadgerStore(BadgerStoreConfig{DataDir: dir})
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
