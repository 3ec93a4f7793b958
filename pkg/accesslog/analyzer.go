package accesslog

import (
	"sort"
	"time"
)

// UIDCount pairs a UID with its observed use count over the analysis
// window.
type UIDCount struct {
	UID        string
	Count      int
	FirstSeen  time.Time
}

// TopUIDs scans the store's records within [now-window, now] and returns
// the top k UIDs ranked by use count, ties broken by earliest first
// appearance in the window.
func TopUIDs(records []Record, now time.Time, window time.Duration, k int) []UIDCount {
	cutoff := now.Add(-window)

	counts := make(map[string]int)
	firstSeen := make(map[string]time.Time)
	var order []string

	for _, rec := range records {
		if rec.Timestamp.Before(cutoff) || rec.Timestamp.After(now) {
			continue
		}
		if _, ok := counts[rec.UID]; !ok {
			order = append(order, rec.UID)
			firstSeen[rec.UID] = rec.Timestamp
		}
		counts[rec.UID]++
		if rec.Timestamp.Before(firstSeen[rec.UID]) {
			firstSeen[rec.UID] = rec.Timestamp
		}
	}

	results := make([]UIDCount, 0, len(order))
	for _, uid := range order {
		results = append(results, UIDCount{UID: uid, Count: counts[uid], FirstSeen: firstSeen[uid]})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].FirstSeen.Before(results[j].FirstSeen)
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}
