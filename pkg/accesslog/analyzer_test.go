package accesslog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTopUIDsRanksByCount(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{Timestamp: now.Add(-time.Hour), UID: "A"},
		{Timestamp: now.Add(-time.Hour * 2), UID: "A"},
		{Timestamp: now.Add(-time.Hour * 3), UID: "B"},
	}

	top := TopUIDs(records, now, 7*24*time.Hour, 100)
	assert.Equal(t, "A", top[0].UID)
	assert.Equal(t, 2, top[0].Count)
	assert.Equal(t, "B", top[1].UID)
}

func TestTopUIDsTieBrokenByFirstSeen(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{Timestamp: now.Add(-time.Hour * 2), UID: "B"},
		{Timestamp: now.Add(-time.Hour * 1), UID: "A"},
	}

	top := TopUIDs(records, now, 7*24*time.Hour, 100)
	assert.Equal(t, "B", top[0].UID)
	assert.Equal(t, "A", top[1].UID)
}

func TestTopUIDsExcludesOutsideWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{Timestamp: now.Add(-8 * 24 * time.Hour), UID: "OLD"},
		{Timestamp: now.Add(-time.Hour), UID: "RECENT"},
	}

	top := TopUIDs(records, now, 7*24*time.Hour, 100)
	assert.Len(t, top, 1)
	assert.Equal(t, "RECENT", top[0].UID)
}

func TestTopUIDsRespectsLimit(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var records []Record
	for i := 0; i < 150; i++ {
		records = append(records, Record{Timestamp: now, UID: string(rune('a' + i%26)) + string(rune(i))})
	}

	top := TopUIDs(records, now, 7*24*time.Hour, 100)
	assert.LessOrEqual(t, len(top), 100)
}
