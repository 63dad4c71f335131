package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

func TestRecord_SetKeepsOrder(t *testing.T) {
	r := NewRecord("pathprobe-ping", epoch)
	r.Set("b", 1).Set("a", 2).Set("b", 3)

	assert.Equal(t, []string{"b", "a"}, r.Columns)
	v, ok := r.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRecord_String(t *testing.T) {
	r := NewRecord("src", epoch)
	r.Set("f", 12.5).Set("i", 7).Set("s", "x").Set("t", epoch).Set("n", nil)

	assert.Equal(t, "12.5", r.String("f"))
	assert.Equal(t, "7", r.String("i"))
	assert.Equal(t, "x", r.String("s"))
	assert.Equal(t, "2026-03-01T12:30:45Z", r.String("t"))
	assert.Equal(t, "", r.String("n"))
	assert.Equal(t, "", r.String("missing"))
}
