package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-recurve/internal/sequence"
)

func TestMapCache(t *testing.T) {
	c := NewMapCache()
	assert.Equal(t, 0, c.Size())

	_, ok := c.Get("3,1")
	assert.False(t, ok)

	l, err := sequence.NewLayout([]int{3, 1})
	require.NoError(t, err)
	s := sequence.NewSchedule(l, false)

	c.Put("3,1", s)
	assert.Equal(t, 1, c.Size())

	got, ok := c.Get("3,1")
	require.True(t, ok)
	assert.Same(t, s, got)

	// Same key overwrites.
	s2 := sequence.NewSchedule(l, true)
	c.Put("3,1", s2)
	assert.Equal(t, 1, c.Size())
	got, _ = c.Get("3,1")
	assert.Same(t, s2, got)
}

func TestMapCacheConcurrent(t *testing.T) {
	c := NewMapCache()
	l, err := sequence.NewLayout([]int{2, 2})
	require.NoError(t, err)
	s := sequence.NewSchedule(l, false)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.Put("2,2", s)
				c.Get("2,2")
				c.Size()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 1, c.Size())
}
