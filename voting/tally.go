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

package voting

import (
	"cmp"
	"slices"
)

// tally computes the resolution for a set of ballots. It never marks the
// result final; callers do that on completion.
func tally(
	majority MajorityType,
	cardinality Cardinality,
	eligible int,
	ballots []Ballot,
	candidates []string,
	maxSelections int,
) Resolution {
	res := Resolution{
		Eligible: eligible,
		Cast:     len(ballots),
	}
	if cardinality == CardinalityMultiple {
		return tallyMultiple(res, majority, ballots, candidates, maxSelections)
	}
	for _, b := range ballots {
		switch b.Choice {
		case ChoiceAccept:
			res.Accept++
		case ChoiceReject:
			res.Reject++
		default:
			res.Abstain++
		}
	}
	res.Outcome = OutcomeReject
	if passes(majority, res.Accept, res.Reject, res.Cast, eligible) {
		res.Outcome = OutcomeAccept
	}
	return res
}

// passes applies the majority rule. For simple majority, against is the
// number of non-abstaining ballots opposed.
func passes(majority MajorityType, inFavour, against, cast, eligible int) bool {
	switch majority {
	case MajorityAbsolute:
		return inFavour > eligible/2
	case MajorityTwoThirds:
		return cast > 0 && inFavour >= ceilDiv(2*cast, 3)
	default:
		return inFavour > against
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func tallyMultiple(
	res Resolution,
	majority MajorityType,
	ballots []Ballot,
	candidates []string,
	maxSelections int,
) Resolution {
	res.Counts = make(map[string]int, len(candidates))
	for _, c := range candidates {
		res.Counts[c] = 0
	}
	participating := 0
	for _, b := range ballots {
		if b.Choice == ChoiceAbstain || len(b.Candidates) == 0 {
			res.Abstain++
			continue
		}
		participating++
		for _, c := range b.Candidates {
			res.Counts[c]++
		}
	}
	for _, c := range candidates {
		n := res.Counts[c]
		if passes(majority, n, participating-n, res.Cast, res.Eligible) {
			res.Winners = append(res.Winners, c)
		}
	}
	slices.SortStableFunc(res.Winners, func(a, b string) int {
		if c := cmp.Compare(res.Counts[b], res.Counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if maxSelections > 0 && len(res.Winners) > maxSelections {
		res.Winners = res.Winners[:maxSelections]
	}
	res.Outcome = OutcomeReject
	if len(res.Winners) > 0 {
		res.Outcome = OutcomeAccept
		res.Accept = participating
	}
	return res
}
