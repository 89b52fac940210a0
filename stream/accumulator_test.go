package stream

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/pantrykit/api"
)

func TestAccumulator_ConsumeAndReset(t *testing.T) {
	s := New(body(
		frame(progress(t, "", "I am")) +
			frame(progress(t, "I am", " a llama")) +
			frame(completion(t, "I am a llama")),
	))

	acc := NewAccumulator()
	require.NoError(t, acc.Consume(s))

	assert.True(t, acc.Done())
	assert.Equal(t, "I am a llama", acc.Text())
	assert.Equal(t, 3, acc.Events())
	assert.Equal(t, uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001"), acc.StreamID())
	assert.Equal(t, StateEnded, s.State())

	acc.Reset()
	assert.False(t, acc.Done())
	assert.Empty(t, acc.Text())
	assert.Zero(t, acc.Events())
	assert.Equal(t, uuid.Nil, acc.StreamID())
	assert.NoError(t, acc.Err())
}

func TestAccumulator_Append(t *testing.T) {
	first := uuid.New()
	acc := NewAccumulator()

	acc.Append(api.LLMEvent{
		StreamID: first,
		Event:    api.EventPayload{Kind: api.EventPromptProgress, Progress: &api.PromptProgress{Next: "partial"}},
	})
	acc.Append(api.LLMEvent{
		StreamID: uuid.New(),
		Event:    api.EventPayload{Kind: api.EventOther},
	})

	assert.False(t, acc.Done())
	assert.Equal(t, "partial", acc.Text())
	assert.Equal(t, 2, acc.Events())
	assert.Equal(t, first, acc.StreamID())

	acc.Append(api.LLMEvent{
		StreamID: first,
		Event:    api.EventPayload{Kind: api.EventPromptError, Error: &api.PromptError{Message: "out of memory"}},
	})

	assert.True(t, acc.Done())
	assert.Equal(t, "partial", acc.Text())
	var infErr *InferenceError
	require.ErrorAs(t, acc.Err(), &infErr)
	assert.Equal(t, "out of memory", infErr.Message)
}
