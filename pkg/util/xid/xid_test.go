package xid

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerator(t *testing.T) {
	g, err := NewGenerator(WithMachineID(func() (int, error) { return 1, nil }))
	require.NoError(t, err)

	id, err := g.New()
	require.NoError(t, err)
	assert.Positive(t, id)

	s, err := g.NewString()
	require.NoError(t, err)
	assert.NotEmpty(t, s)
}

func TestNewGeneratorMachineIDError(t *testing.T) {
	_, err := NewGenerator(WithMachineID(func() (int, error) {
		return 0, errors.New("no machine id")
	}))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGeneratorUniqueness(t *testing.T) {
	g, err := NewGenerator(WithMachineID(func() (int, error) { return 7, nil }))
	require.NoError(t, err)

	const n = 500
	seen := make(map[int64]struct{}, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range n / 10 {
				id, err := g.New()
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestNilGenerator(t *testing.T) {
	var g *Generator
	_, err := g.New()
	require.ErrorIs(t, err, ErrNilGenerator)
}

func TestParse(t *testing.T) {
	id, err := Parse("12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), id)

	_, err = Parse("not-a-number")
	require.ErrorIs(t, err, ErrInvalidID)

	_, err = Parse("-5")
	require.ErrorIs(t, err, ErrInvalidID)

	_, err = Parse("0")
	require.ErrorIs(t, err, ErrInvalidID)
}
