package allowlist

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplacePreservesInsertionOrder(t *testing.T) {
	c := New()
	c.Replace([]string{"C", "A", "B"})

	assert.Equal(t, []string{"C", "A", "B"}, c.Snapshot())
	assert.Equal(t, 3, c.Len())
}

func TestReplaceDeduplicates(t *testing.T) {
	c := New()
	c.Replace([]string{"A", "B", "A"})

	assert.Equal(t, []string{"A", "B"}, c.Snapshot())
}

func TestAddIsIdempotent(t *testing.T) {
	c := New()
	c.Add("A")
	c.Add("B")
	c.Add("A")

	assert.Equal(t, []string{"A", "B"}, c.Snapshot())
}

func TestRemove(t *testing.T) {
	c := New()
	c.Replace([]string{"A", "B", "C"})

	assert.True(t, c.Remove("B"))
	assert.False(t, c.Remove("B"))
	assert.Equal(t, []string{"A", "C"}, c.Snapshot())
	assert.False(t, c.Contains("B"))
}

func TestTopRespectsLimitAndOrder(t *testing.T) {
	c := New()
	c.Replace([]string{"A", "B", "C", "D"})

	assert.Equal(t, []string{"A", "B"}, c.Top(2))
	assert.Equal(t, []string{"A", "B", "C", "D"}, c.Top(100))
}

func TestPublicationCapAtLimit(t *testing.T) {
	c := New()
	uids := make([]string, 250)
	for i := range uids {
		uids[i] = fmt.Sprintf("uid-%d", i)
	}
	c.Replace(uids)

	top := c.Top(100)
	assert.LessOrEqual(t, len(top), 100)
}
