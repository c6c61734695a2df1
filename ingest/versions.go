// ingest/versions.go
package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/gewnthar/registers/models"
)

// Group holds every row for one reference, in file order.
type Group struct {
	Reference string
	Rows      []Row
}

// Entity returns the first explicit entity in the group, or "".
func (g Group) Entity() string {
	for _, r := range g.Rows {
		if e := r.Entity(); e != "" {
			return e
		}
	}
	return ""
}

// Lines lists the source lines of the group's rows.
func (g Group) Lines() []int {
	lines := make([]int, len(g.Rows))
	for i, r := range g.Rows {
		lines[i] = r.Line
	}
	return lines
}

// GroupByReference groups clean rows by reference, keeping groups in order of
// first appearance. Rows that failed to parse are skipped.
func GroupByReference(rows []Row) []Group {
	index := map[string]int{}
	var groups []Group
	for _, r := range rows {
		if r.Err != nil {
			continue
		}
		ref := r.Reference()
		i, ok := index[ref]
		if !ok {
			i = len(groups)
			index[ref] = i
			groups = append(groups, Group{Reference: ref})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	return groups
}

// Versions orders the group's rows by end-date ascending with blank end dates
// last. Replaying them in this order leaves the row still in effect as the
// final state.
func (g Group) Versions() ([]Row, error) {
	type version struct {
		row Row
		end *time.Time
	}
	versions := make([]version, len(g.Rows))
	for i, r := range g.Rows {
		end, err := models.ParseDate(r.EndDate())
		if err != nil {
			return nil, fmt.Errorf("line %d end-date: %w", r.Line, err)
		}
		versions[i] = version{row: r, end: end}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		a, b := versions[i].end, versions[j].end
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})

	out := make([]Row, len(versions))
	for i, v := range versions {
		out[i] = v.row
	}
	return out, nil
}
