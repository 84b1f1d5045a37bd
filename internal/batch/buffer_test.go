package batch

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidSettings(t *testing.T) {
	assert.Panics(t, func() { New[int](Settings{MaxEvents: 0, MaxBytes: 10}) })
	assert.Panics(t, func() { New[int](Settings{MaxEvents: 10, MaxBytes: 0}) })
}

func TestInsert_Outcomes(t *testing.T) {
	buf := New[string](Settings{MaxEvents: 3, MaxBytes: 10})

	assert.Equal(t, Accepted, buf.Insert("a", 4))
	assert.Equal(t, 1, buf.Len())
	assert.Equal(t, 4, buf.SizeEstimate())

	// 4 + 7 > 10: rejected without touching the buffer
	assert.Equal(t, Overflow, buf.Insert("b", 7))
	assert.Equal(t, 1, buf.Len())
	assert.Equal(t, 4, buf.SizeEstimate())

	assert.Equal(t, TooLarge, buf.Insert("huge", 11))
	assert.Equal(t, 1, buf.Len())

	assert.Equal(t, Accepted, buf.Insert("c", 2))
	assert.Equal(t, AcceptedFull, buf.Insert("d", 1))
	assert.Equal(t, 3, buf.Len())

	assert.Equal(t, Overflow, buf.Insert("e", 1))
}

func TestInsert_FullOnBytes(t *testing.T) {
	buf := New[int](Settings{MaxEvents: 100, MaxBytes: 10})
	assert.Equal(t, Accepted, buf.Insert(1, 5))
	assert.Equal(t, AcceptedFull, buf.Insert(2, 5))
}

func TestInsert_SingleItemAtLimit(t *testing.T) {
	buf := New[int](Settings{MaxEvents: 1, MaxBytes: 10})
	assert.Equal(t, AcceptedFull, buf.Insert(1, 10))
}

func TestFinish(t *testing.T) {
	buf := New[int](Settings{MaxEvents: 5, MaxBytes: 100})
	require.True(t, buf.IsEmpty())
	assert.Panics(t, func() { buf.Finish() })

	buf.Insert(1, 10)
	buf.Insert(2, 20)

	b := buf.Finish()
	assert.Equal(t, []int{1, 2}, b.Items)
	assert.Equal(t, 30, b.Size)
	assert.Equal(t, 2, b.Len())

	assert.True(t, buf.IsEmpty())
	assert.Equal(t, 0, buf.SizeEstimate())

	// The finished batch is detached from the buffer
	buf.Insert(3, 1)
	assert.Equal(t, []int{1, 2}, b.Items)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "accepted_full", AcceptedFull.String())
	assert.Equal(t, "overflow", Overflow.String())
	assert.Equal(t, "too_large", TooLarge.String())
	assert.Equal(t, "unknown(9)", Outcome(9).String())
}

// Drives the buffer the way the sink does and checks that no finished batch
// exceeds either limit and that every accepted item lands in exactly one batch.
func TestBuffer_LimitsHoldForRandomInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for round := 0; round < 200; round++ {
		settings := Settings{
			MaxEvents: 1 + rng.IntN(20),
			MaxBytes:  1 + rng.IntN(500),
		}
		buf := New[int](settings)

		var batches []Batch[int]
		accepted, rejected := 0, 0
		n := rng.IntN(300)

		for i := 0; i < n; i++ {
			size := 1 + rng.IntN(settings.MaxBytes+50)
			switch buf.Insert(i, size) {
			case Accepted:
				accepted++
			case AcceptedFull:
				accepted++
				batches = append(batches, buf.Finish())
			case Overflow:
				batches = append(batches, buf.Finish())
				out := buf.Insert(i, size)
				require.Contains(t, []Outcome{Accepted, AcceptedFull}, out)
				accepted++
				if out == AcceptedFull {
					batches = append(batches, buf.Finish())
				}
			case TooLarge:
				require.Greater(t, size, settings.MaxBytes)
				rejected++
			}
		}
		if !buf.IsEmpty() {
			batches = append(batches, buf.Finish())
		}

		total := 0
		for _, b := range batches {
			require.NotZero(t, b.Len())
			require.LessOrEqual(t, b.Len(), settings.MaxEvents)
			require.LessOrEqual(t, b.Size, settings.MaxBytes)
			total += b.Len()
		}
		require.Equal(t, accepted, total)
		require.Equal(t, n, accepted+rejected)
	}
}
