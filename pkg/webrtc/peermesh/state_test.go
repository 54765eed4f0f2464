package peermesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandshakeStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "offer-sent", StateOfferSent.String())
	assert.Equal(t, "offer-received", StateOfferReceived.String())
	assert.Equal(t, "answer-sent", StateAnswerSent.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", HandshakeState(99).String())
}

func TestTerminal(t *testing.T) {
	assert.False(t, StateIdle.Terminal())
	assert.False(t, StateConnected.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateClosed.Terminal())
}

func TestCanTransition(t *testing.T) {
	all := []HandshakeState{
		StateIdle, StateOfferSent, StateOfferReceived,
		StateAnswerSent, StateConnected, StateFailed, StateClosed,
	}

	legal := map[HandshakeState][]HandshakeState{
		StateIdle:          {StateOfferSent, StateOfferReceived},
		StateOfferSent:     {StateConnected},
		StateOfferReceived: {StateAnswerSent},
		StateAnswerSent:    {StateConnected},
		StateConnected:     {StateConnected},
	}

	for _, from := range all {
		for _, to := range all {
			expect := false
			if to == StateClosed {
				expect = true
			} else if to == StateFailed {
				expect = !from.Terminal()
			} else {
				for _, next := range legal[from] {
					if next == to {
						expect = true
					}
				}
			}
			assert.Equalf(t, expect, from.CanTransition(to),
				"transition %s -> %s", from, to)
		}
	}
}
