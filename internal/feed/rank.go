package feed

import "sort"

// rankFindings orders findings most-urgent first. Ties break on the older
// trigger, then on ID, so the order is total and two runs over the same data
// always agree.
func rankFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Urgency != b.Urgency {
			return a.Urgency > b.Urgency
		}
		if !a.TriggeredAt.Equal(b.TriggeredAt) {
			return a.TriggeredAt.Before(b.TriggeredAt)
		}
		return a.ID() < b.ID()
	})
}

// sortActivity orders items newest first, with the ID as a stable tiebreak.
func sortActivity(items []ActivityItem) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID < b.ID
	})
}

func sortPins(pins []MapPin) {
	sort.Slice(pins, func(i, j int) bool { return pins[i].ID < pins[j].ID })
}

func capFindings(findings []Finding, limit int) []Finding {
	if len(findings) > limit {
		return findings[:limit]
	}
	return findings
}

func capActivity(items []ActivityItem, limit int) []ActivityItem {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
