package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_TripIsIdempotent(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.IsTripped())

	require.NotPanics(t, func() {
		tok.Trip()
		tok.Trip()
		tok.Trip()
	})

	assert.True(t, tok.IsTripped())
	select {
	case <-tok.Tripped():
	default:
		t.Fatal("Tripped channel should be closed after Trip")
	}
}

func TestToken_ConcurrentTrip(t *testing.T) {
	tok := NewToken()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			tok.Trip()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.True(t, tok.IsTripped())
}
