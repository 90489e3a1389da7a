/*
Copyright The Coxswain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package campaign

import "github.com/pkg/errors"

// Priority is the scheduling class of a campaign. Higher priorities are
// always drained before lower ones; within one priority the oldest
// campaign wins.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// DefaultPriority is assigned when a submission does not name one.
const DefaultPriority = PriorityMedium

// priorityRank orders priorities for the queue. Lower rank drains first.
var priorityRank = map[Priority]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityMedium: 2,
	PriorityLow:    3,
}

func (p Priority) String() string { return string(p) }

// Rank returns the sort key of the priority. Unknown priorities sort
// after every known one.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// IsValid reports whether p is one of the four known priorities.
func (p Priority) IsValid() bool {
	_, ok := priorityRank[p]
	return ok
}

// ParsePriority converts s into a Priority, failing on anything outside
// the four known classes. The empty string parses to DefaultPriority.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return DefaultPriority, nil
	}
	p := Priority(s)
	if !p.IsValid() {
		return "", errors.Errorf("invalid priority %q: must be one of urgent, high, medium, low", s)
	}
	return p, nil
}
