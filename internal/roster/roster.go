// Package roster computes the enrollment changes needed to bring a course
// roster to a requested state.
package roster

import "sort"

// Delta is a set of student ids to enroll and to drop.
// Both slices are sorted and free of duplicates.
type Delta struct {
	Add    []string
	Remove []string
}

// Empty reports whether applying d would change nothing.
func (d Delta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Replace returns the delta that turns current into requested.
func Replace(current, requested []string) Delta {
	have := toSet(current)
	want := toSet(requested)
	return Delta{
		Add:    difference(want, have),
		Remove: difference(have, want),
	}
}

// Remove returns the delta that drops every requested id that is currently
// enrolled. Ids that are not enrolled are ignored.
func Remove(current, requested []string) Delta {
	have := toSet(current)
	drop := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		if _, ok := have[id]; ok {
			drop[id] = struct{}{}
		}
	}
	return Delta{Remove: sorted(drop)}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// difference returns a − b.
func difference(a, b map[string]struct{}) []string {
	out := make(map[string]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return sorted(out)
}

func sorted(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
