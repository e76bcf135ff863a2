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

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/civicweave/ratify/federation"
	"github.com/civicweave/ratify/internal/config"
	"github.com/civicweave/ratify/planner"
	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/types"
	"github.com/spf13/cobra"
)

func planCommand() *cobra.Command {
	var from, to, federationFile string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the forwarding path between two groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			if federationFile == "" {
				if cfg := config.FromContext(cmd.Context()); cfg != nil {
					federationFile = cfg.Federation
				}
			}
			if federationFile == "" {
				return errors.New("a federation file is required")
			}
			fed, err := federation.NewFederationConfigFromFile(federationFile)
			if err != nil {
				return err
			}
			cfg := config.FromContext(cmd.Context())
			maxHops := 0
			if cfg != nil {
				maxHops = cfg.MaxHops
			}
			return runPlan(cmd.OutOrStdout(), fed, maxHops, types.GroupID(from), types.GroupID(to))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "origin group")
	cmd.Flags().StringVar(&to, "to", "", "target group")
	cmd.Flags().StringVar(&federationFile, "federation", "", "federation file, defaults to the configured one")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runPlan(
	w io.Writer,
	fed *federation.FederationConfig,
	maxHops int,
	from, to types.GroupID,
) error {
	graph := rights.NewGraph(rights.WithMaxHops(maxHops))
	if err := fed.Apply(graph, nil); err != nil {
		return err
	}
	cal, err := fed.Calendar()
	if err != nil {
		return err
	}
	p := planner.NewPlanner(planner.PlannerConfig{
		Graph:    graph,
		Calendar: cal,
	})
	path, err := p.Plan(from, to)
	if err != nil {
		return err
	}
	for _, seg := range path.Segments {
		meetingID := "-"
		if seg.HasMeeting() {
			meetingID = string(seg.Meeting)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", seg.Index, seg.Group, meetingID)
	}
	return nil
}
