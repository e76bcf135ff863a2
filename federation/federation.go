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

// Package federation loads the seed file describing the groups of a
// federation, the rights delegated between them, their members and their
// scheduled meetings.
package federation

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/civicweave/ratify/meeting"
	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/types"
	"gopkg.in/yaml.v3"
)

// maxFederationSize is the maximum allowed size for a federation seed file
// (10 MB). This prevents unbounded memory allocation from untrusted readers.
const maxFederationSize = 10 * 1024 * 1024

// FederationConfig is the parsed seed file
type FederationConfig struct {
	Groups        []FederationGroup        `yaml:"groups"`
	Relationships []FederationRelationship `yaml:"relationships"`
	Meetings      []meeting.Meeting        `yaml:"meetings"`
}

type FederationGroup struct {
	ID      types.GroupID  `yaml:"id"`
	Name    string         `yaml:"name"`
	Members []types.UserID `yaml:"members"`
}

type FederationRelationship struct {
	Parent    types.GroupID             `yaml:"parent"`
	Child     types.GroupID             `yaml:"child"`
	Right     rights.RightKind          `yaml:"right"`
	Status    rights.RelationshipStatus `yaml:"status"`
	Initiator types.UserID              `yaml:"initiator"`
}

// MemberDirectory receives the members of each group
type MemberDirectory interface {
	Set(group types.GroupID, members []types.UserID)
}

func NewFederationConfigFromFile(path string) (*FederationConfig, error) {
	dataFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer dataFile.Close()
	return NewFederationConfigFromReader(dataFile)
}

func NewFederationConfigFromReader(r io.Reader) (*FederationConfig, error) {
	f := &FederationConfig{}
	data, err := io.ReadAll(io.LimitReader(r, maxFederationSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxFederationSize {
		return nil, fmt.Errorf(
			"federation file exceeds maximum size of %d bytes",
			maxFederationSize,
		)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse federation file: %w", err)
	}
	return f, nil
}

// Apply loads groups and relationships into the graph and group members into
// the directory. A relationship without a status is active. Meetings are
// left to the caller so that they can be scheduled through the workflow.
func (f *FederationConfig) Apply(graph *rights.Graph, directory MemberDirectory) error {
	var errs []error
	for _, g := range f.Groups {
		if err := graph.AddGroup(rights.Group{
			ID:          g.ID,
			Name:        g.Name,
			MemberCount: len(g.Members),
		}); err != nil {
			errs = append(errs, fmt.Errorf("group %q: %w", g.ID, err))
			continue
		}
		if directory != nil {
			directory.Set(g.ID, g.Members)
		}
	}
	for _, r := range f.Relationships {
		status := r.Status
		if status == "" {
			status = rights.StatusActive
		}
		if err := graph.AddRelationship(
			r.Parent,
			r.Child,
			r.Right,
			status,
			r.Initiator,
		); err != nil {
			errs = append(errs, fmt.Errorf(
				"relationship %s -> %s (%s): %w",
				r.Parent,
				r.Child,
				r.Right,
				err,
			))
		}
	}
	return errors.Join(errs...)
}

// Calendar builds a calendar holding the seed meetings
func (f *FederationConfig) Calendar() (*meeting.Calendar, error) {
	cal := meeting.NewCalendar()
	for _, m := range f.Meetings {
		if err := cal.Add(m); err != nil {
			return nil, fmt.Errorf("meeting %q: %w", m.ID, err)
		}
	}
	return cal, nil
}
