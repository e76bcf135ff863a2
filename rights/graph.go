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

// Package rights implements the directed multigraph of delegated rights
// between groups. Every edge is tagged with a right kind and a status, and
// queries filter by kind. Only active amendment-forwarding edges take part in
// path computation.
package rights

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/civicweave/ratify/types"
)

// DefaultMaxHops bounds the length of enumerated forwarding paths
const DefaultMaxHops = 4

var (
	ErrUnknownGroup        = errors.New("unknown group")
	ErrSelfRelationship    = errors.New("group cannot hold a right on itself")
	ErrRelationshipMissing = errors.New("relationship not found")
	ErrInvalidRight        = errors.New("invalid right kind")
	ErrInvalidStatus       = errors.New("invalid relationship status")
)

// RightKind identifies the right delegated along an edge
type RightKind string

const (
	RightAmendmentForwarding RightKind = "amendment_forwarding"
	RightInformation         RightKind = "information"
	RightSpeak               RightKind = "speak"
	RightActiveVote          RightKind = "active_vote"
	RightPassiveVote         RightKind = "passive_vote"
)

// Valid returns true if the right kind is known
func (r RightKind) Valid() bool {
	switch r {
	case RightAmendmentForwarding,
		RightInformation,
		RightSpeak,
		RightActiveVote,
		RightPassiveVote:
		return true
	default:
		return false
	}
}

// RelationshipStatus is the lifecycle state of an edge
type RelationshipStatus string

const (
	StatusRequested RelationshipStatus = "requested"
	StatusActive    RelationshipStatus = "active"
)

// Valid returns true if the status is known
func (s RelationshipStatus) Valid() bool {
	return s == StatusRequested || s == StatusActive
}

// Group is an organizational unit
type Group struct {
	ID          types.GroupID `json:"id"          yaml:"id"`
	Name        string        `json:"name"        yaml:"name"`
	MemberCount int           `json:"memberCount" yaml:"memberCount"`
}

// Relationship is a directed, typed edge from Parent to Child
type Relationship struct {
	Parent    types.GroupID      `json:"parent"`
	Child     types.GroupID      `json:"child"`
	Right     RightKind          `json:"right"`
	Status    RelationshipStatus `json:"status"`
	Initiator types.UserID       `json:"initiator,omitempty"`
}

func (r Relationship) forwardable() bool {
	return r.Right == RightAmendmentForwarding && r.Status == StatusActive
}

// Graph is a concurrency-safe rights multigraph
type Graph struct {
	groups   map[types.GroupID]Group
	outgoing map[types.GroupID][]Relationship
	maxHops  int
	mu       sync.RWMutex
}

// GraphOptionFunc customizes a Graph
type GraphOptionFunc func(*Graph)

// WithMaxHops overrides the path length bound used by Reachable
func WithMaxHops(maxHops int) GraphOptionFunc {
	return func(g *Graph) {
		if maxHops > 0 {
			g.maxHops = maxHops
		}
	}
}

// NewGraph returns an empty rights graph
func NewGraph(opts ...GraphOptionFunc) *Graph {
	g := &Graph{
		groups:   make(map[types.GroupID]Group),
		outgoing: make(map[types.GroupID][]Relationship),
		maxHops:  DefaultMaxHops,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxHops returns the configured path length bound
func (g *Graph) MaxHops() int {
	return g.maxHops
}

// AddGroup registers or updates a group
func (g *Graph) AddGroup(group Group) error {
	if group.ID == "" {
		return errors.New("group id cannot be empty")
	}
	if group.MemberCount < 0 {
		return fmt.Errorf("group %s: negative member count", group.ID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups[group.ID] = group
	return nil
}

// Group looks up a group by id
func (g *Graph) Group(id types.GroupID) (Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	group, ok := g.groups[id]
	return group, ok
}

// Groups returns all registered groups ordered by id
func (g *Graph) Groups() []Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ret := make([]Group, 0, len(g.groups))
	for _, group := range g.groups {
		ret = append(ret, group)
	}
	slices.SortFunc(ret, func(a, b Group) int {
		return compareIDs(a.ID, b.ID)
	})
	return ret
}

// AddRelationship adds a typed edge. Adding an edge that already exists for
// the same (parent, child, right) updates its status and initiator.
func (g *Graph) AddRelationship(
	parent types.GroupID,
	child types.GroupID,
	right RightKind,
	status RelationshipStatus,
	initiator types.UserID,
) error {
	if !right.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRight, right)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if parent == child {
		return fmt.Errorf("%w: %s", ErrSelfRelationship, parent)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range []types.GroupID{parent, child} {
		if _, ok := g.groups[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownGroup, id)
		}
	}
	rel := Relationship{
		Parent:    parent,
		Child:     child,
		Right:     right,
		Status:    status,
		Initiator: initiator,
	}
	edges := g.outgoing[parent]
	for i, edge := range edges {
		if edge.Child == child && edge.Right == right {
			edges[i] = rel
			return nil
		}
	}
	g.outgoing[parent] = append(edges, rel)
	return nil
}

// Activate moves a requested relationship to active
func (g *Graph) Activate(
	parent types.GroupID,
	child types.GroupID,
	right RightKind,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	edges := g.outgoing[parent]
	for i, edge := range edges {
		if edge.Child == child && edge.Right == right {
			edges[i].Status = StatusActive
			return nil
		}
	}
	return fmt.Errorf(
		"%w: %s -[%s]-> %s",
		ErrRelationshipMissing,
		parent,
		right,
		child,
	)
}

// Relationships returns the outgoing edges of a group, of every kind
func (g *Graph) Relationships(parent types.GroupID) []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.outgoing[parent])
}

// IsForwardable returns true iff an active amendment-forwarding edge exists
// from parent to child
func (g *Graph) IsForwardable(parent, child types.GroupID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isForwardable(parent, child)
}

func (g *Graph) isForwardable(parent, child types.GroupID) bool {
	for _, edge := range g.outgoing[parent] {
		if edge.Child == child && edge.forwardable() {
			return true
		}
	}
	return false
}

// forwardTargets returns the distinct children reachable over a forwarding
// edge, in ascending id order so enumeration is deterministic
func (g *Graph) forwardTargets(parent types.GroupID) []types.GroupID {
	var ret []types.GroupID
	for _, edge := range g.outgoing[parent] {
		if !edge.forwardable() || slices.Contains(ret, edge.Child) {
			continue
		}
		ret = append(ret, edge.Child)
	}
	slices.SortFunc(ret, compareIDs)
	return ret
}

// Reachable enumerates every simple forwarding path from source to target
// with at most MaxHops edges. Each path starts with source and ends with
// target. An empty result means no route exists yet, which is a normal
// outcome while the federation is being configured.
func (g *Graph) Reachable(source, target types.GroupID) [][]types.GroupID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.groups[source]; !ok {
		return nil
	}
	if _, ok := g.groups[target]; !ok {
		return nil
	}
	if source == target {
		return [][]types.GroupID{{source}}
	}
	var ret [][]types.GroupID
	visited := map[types.GroupID]bool{source: true}
	current := []types.GroupID{source}
	var walk func(node types.GroupID)
	walk = func(node types.GroupID) {
		if len(current)-1 >= g.maxHops {
			return
		}
		for _, next := range g.forwardTargets(node) {
			if visited[next] {
				continue
			}
			current = append(current, next)
			if next == target {
				ret = append(ret, slices.Clone(current))
			} else {
				visited[next] = true
				walk(next)
				visited[next] = false
			}
			current = current[:len(current)-1]
		}
	}
	walk(source)
	return ret
}

// Snapshot returns an independent copy of the graph for uncoordinated reads
func (g *Graph) Snapshot() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ret := NewGraph(WithMaxHops(g.maxHops))
	for id, group := range g.groups {
		ret.groups[id] = group
	}
	for id, edges := range g.outgoing {
		ret.outgoing[id] = slices.Clone(edges)
	}
	return ret
}

func compareIDs(a, b types.GroupID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
