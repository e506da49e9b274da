package watch

import "strings"

// FindMatch returns the slot for the highest-priority preferred time.
// Preferences are tried in order; for each, slots are scanned in provider
// order and the first slot whose start contains " "+pref wins. A later
// preference is never chosen while an earlier one has any hit.
func FindMatch(slots []Slot, preferred []string) (Slot, bool) {
	if len(slots) == 0 {
		return Slot{}, false
	}
	for _, p := range preferred {
		needle := " " + p
		for _, s := range slots {
			if strings.Contains(s.Start, needle) {
				return s, true
			}
		}
	}
	return Slot{}, false
}

// Starts lists slot start values, or "none" for an empty list.
func Starts(slots []Slot) string {
	if len(slots) == 0 {
		return "none"
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		start := s.Start
		if start == "" {
			start = "?"
		}
		out = append(out, start)
	}
	return strings.Join(out, ", ")
}
