package wsched_test

import (
	"testing"
	"time"

	"github.com/ssc-witness/witness/wengine/internal/wsched"
	"github.com/stretchr/testify/require"
)

func TestQueue_PopDue(t *testing.T) {
	t.Parallel()

	var q wsched.Queue[string]
	_, ok := q.NextDue()
	require.False(t, ok)

	base := time.Unix(1000, 0)
	q.Push(base.Add(3*time.Second), "c")
	q.Push(base.Add(1*time.Second), "a")
	q.Push(base.Add(2*time.Second), "b1")
	q.Push(base.Add(2*time.Second), "b2")

	due, ok := q.NextDue()
	require.True(t, ok)
	require.Equal(t, base.Add(time.Second), due)

	require.Empty(t, q.PopDue(base))
	require.Equal(t, []string{"a", "b1", "b2"}, q.PopDue(base.Add(2*time.Second)))
	require.Equal(t, 1, q.Len())

	require.Equal(t, []string{"c"}, q.PopDue(base.Add(time.Hour)))
	require.Zero(t, q.Len())
}

func TestQueue_Filter(t *testing.T) {
	t.Parallel()

	var q wsched.Queue[int]
	base := time.Unix(1000, 0)
	for i := range 6 {
		q.Push(base.Add(time.Duration(6-i)*time.Second), i)
	}

	q.Filter(func(v int) bool { return v%2 == 0 })
	require.Equal(t, 3, q.Len())

	due, ok := q.NextDue()
	require.True(t, ok)
	require.Equal(t, base.Add(2*time.Second), due, "earliest remaining task is 4")

	require.Equal(t, []int{4, 2, 0}, q.PopDue(base.Add(time.Hour)))
}
