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

// Package document models amendment text as versioned content with
// region-based diffs, and provides the stores that hold it.
package document

import (
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/civicweave/ratify/types"
	"github.com/zeebo/blake3"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
	ErrRegionOutOfRange = errors.New("diff region out of range")
	ErrOverlap          = errors.New("diff overlaps an applied change")
)

// Region is a half-open byte range [Start, End) of the document text. An
// empty region is an insertion point.
type Region struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Region) IsInsertion() bool {
	return r.Start == r.End
}

// Overlaps reports whether two regions touch the same text. Two insertions
// overlap only at the same point; an insertion overlaps a span strictly
// inside it.
func (r Region) Overlaps(o Region) bool {
	switch {
	case r.IsInsertion() && o.IsInsertion():
		return r.Start == o.Start
	case r.IsInsertion():
		return o.Start < r.Start && r.Start < o.End
	case o.IsInsertion():
		return r.Start < o.Start && o.Start < r.End
	}
	return r.Start < o.End && o.Start < r.End
}

// Diff replaces a region of the text and optionally sets document
// properties. A diff with a nil region only changes properties.
type Diff struct {
	Region      *Region           `json:"region,omitempty"`
	Replacement string            `json:"replacement,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

func (d Diff) Validate() error {
	if d.Region == nil && len(d.Properties) == 0 {
		return errors.New("diff changes nothing")
	}
	if d.Region != nil && (d.Region.Start < 0 || d.Region.End < d.Region.Start) {
		return fmt.Errorf("%w: [%d,%d)", ErrRegionOutOfRange, d.Region.Start, d.Region.End)
	}
	return nil
}

// Conflicts returns true if both diffs edit overlapping text or set the
// same property
func (d Diff) Conflicts(o Diff) bool {
	if d.Region != nil && o.Region != nil && d.Region.Overlaps(*o.Region) {
		return true
	}
	for k := range d.Properties {
		if _, ok := o.Properties[k]; ok {
			return true
		}
	}
	return false
}

func (d Diff) delta() int {
	if d.Region == nil {
		return 0
	}
	return len(d.Replacement) - (d.Region.End - d.Region.Start)
}

// Rebase moves a diff written against an older version across the diffs
// applied since, in application order. It fails with ErrOverlap if the diff
// conflicts with any of them.
func (d Diff) Rebase(applied []Diff) (Diff, error) {
	ret := d.Clone()
	for i, a := range applied {
		if ret.Conflicts(a) {
			return Diff{}, fmt.Errorf("%w: change %d since base version", ErrOverlap, i+1)
		}
		if ret.Region == nil || a.Region == nil {
			continue
		}
		if a.Region.End <= ret.Region.Start {
			shift := a.delta()
			ret.Region.Start += shift
			ret.Region.End += shift
		}
	}
	return ret, nil
}

func (d Diff) Clone() Diff {
	ret := Diff{
		Replacement: d.Replacement,
		Properties:  maps.Clone(d.Properties),
	}
	if d.Region != nil {
		r := *d.Region
		ret.Region = &r
	}
	return ret
}

// Content is a version of an amendment's document. Ref identifies the
// content and is stable across stores.
type Content struct {
	Amendment  types.AmendmentID `json:"amendment"`
	Text       string            `json:"text"`
	Properties map[string]string `json:"properties,omitempty"`
	Version    int               `json:"version"`
	Ref        string            `json:"ref"`
}

// Apply returns the content produced by applying the diff. The version is
// incremented and the ref recomputed.
func (c Content) Apply(d Diff) (Content, error) {
	if err := d.Validate(); err != nil {
		return Content{}, err
	}
	ret := Content{
		Amendment:  c.Amendment,
		Text:       c.Text,
		Properties: maps.Clone(c.Properties),
		Version:    c.Version + 1,
	}
	if d.Region != nil {
		if d.Region.End > len(c.Text) {
			return Content{}, fmt.Errorf(
				"%w: [%d,%d) in text of length %d",
				ErrRegionOutOfRange,
				d.Region.Start,
				d.Region.End,
				len(c.Text),
			)
		}
		ret.Text = c.Text[:d.Region.Start] + d.Replacement + c.Text[d.Region.End:]
	}
	if len(d.Properties) > 0 && ret.Properties == nil {
		ret.Properties = make(map[string]string, len(d.Properties))
	}
	for k, v := range d.Properties {
		if v == "" {
			delete(ret.Properties, k)
			continue
		}
		ret.Properties[k] = v
	}
	ret.Ref = ContentRef(ret.Text, ret.Properties)
	return ret, nil
}

// ContentRef hashes text and properties into a content reference
func ContentRef(text string, props map[string]string) string {
	h := blake3.New()
	_, _ = h.WriteString(text)
	for _, k := range slices.Sorted(maps.Keys(props)) {
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(props[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
