package thinking

import (
	"strings"
	"testing"

	"streamchat-orchestrator/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(b *Buffer, tokens []string) []Emission {
	var all []Emission
	for _, t := range tokens {
		all = append(all, b.Feed(t)...)
	}
	return all
}

func TestBuffer_NonThinkingModelIsPassthrough(t *testing.T) {
	b := NewBuffer(domain.ModelProfile{SupportsThinking: false})
	emissions := feedAll(b, []string{"Hel", "lo", " world"})

	require.Len(t, emissions, 3)
	for i, tok := range []string{"Hel", "lo", " world"} {
		assert.Equal(t, EmitStream, emissions[i].Kind)
		assert.Equal(t, tok, emissions[i].Text)
	}
}

func TestBuffer_ThinkingModelRetroactiveMove(t *testing.T) {
	profile := domain.ModelProfile{
		SupportsThinking: true,
		ThinkStart:       "<think>",
		ThinkEnd:         "</think>",
	}
	b := NewBuffer(profile)

	emissions := feedAll(b, []string{"<think>", "why", "?", "</think>", "Because"})

	var moveTo *Emission
	var thinkingComplete bool
	var plainStream []string
	var pendingStream []string

	for i := range emissions {
		e := &emissions[i]
		switch e.Kind {
		case EmitMoveToThinking:
			moveTo = e
		case EmitThinkingComplete:
			thinkingComplete = true
		case EmitStream:
			if e.IsPendingThinking {
				pendingStream = append(pendingStream, e.Text)
			} else {
				plainStream = append(plainStream, e.Text)
			}
		}
	}

	require.NotNil(t, moveTo)
	assert.Equal(t, "why?", moveTo.Text)
	assert.Equal(t, []string{"why", "?"}, moveTo.PendingTokens)
	assert.True(t, thinkingComplete)
	assert.Equal(t, []string{"why", "?"}, pendingStream)
	assert.Equal(t, []string{"Because"}, plainStream)

	// P6: the pre-move pending stream concatenation must contain the moved
	// content as a contiguous substring, and those exact tokens are listed.
	assert.Contains(t, strings.Join(pendingStream, ""), moveTo.Text)
}

func TestBuffer_EmptyThinkingPairEmitsNothing(t *testing.T) {
	profile := domain.ModelProfile{
		SupportsThinking: true,
		ThinkStart:       "<think>",
		ThinkEnd:         "</think>",
	}
	b := NewBuffer(profile)

	emissions := feedAll(b, []string{"<think>", "</think>", "Hi"})

	require.Len(t, emissions, 1)
	assert.Equal(t, EmitStream, emissions[0].Kind)
	assert.Equal(t, "Hi", emissions[0].Text)
	assert.False(t, emissions[0].IsPendingThinking)
}

func TestBuffer_EmptyThinkingPairInSingleToken(t *testing.T) {
	profile := domain.ModelProfile{
		SupportsThinking: true,
		ThinkStart:       "<think>",
		ThinkEnd:         "</think>",
	}
	b := NewBuffer(profile)

	emissions := b.Feed("<think></think>Hi")

	require.Len(t, emissions, 1)
	assert.Equal(t, "Hi", emissions[0].Text)
}

func TestBuffer_GPTOSSSpecialProfileResponseStartTerminatesThinking(t *testing.T) {
	profile := domain.ModelProfile{
		SupportsThinking: true,
		ThinkStart:       "<|channel|>analysis<|message|>",
		ThinkEnd:         "<|end|>", // never appears for this family
		ResponseStart:    "<|start|>assistant<|message|>",
		SpecialProfile:   SpecialGPTOSS,
	}
	b := NewBuffer(profile)

	emissions := feedAll(b, []string{
		"<|channel|>analysis<|message|>", "pondering", "<|start|>assistant<|message|>", "answer",
	})

	var moveTo *Emission
	var afterResponse []string
	for i := range emissions {
		e := &emissions[i]
		if e.Kind == EmitMoveToThinking {
			moveTo = e
		}
		if e.Kind == EmitStream && !e.IsPendingThinking {
			afterResponse = append(afterResponse, e.Text)
		}
	}

	require.NotNil(t, moveTo)
	assert.Equal(t, "pondering", moveTo.Text)
	assert.Equal(t, []string{"answer"}, afterResponse)
}

func TestBuffer_SplitTagAcrossTokensStillDetected(t *testing.T) {
	profile := domain.ModelProfile{
		SupportsThinking: true,
		ThinkStart:       "<think>",
		ThinkEnd:         "</think>",
	}
	b := NewBuffer(profile)

	emissions := feedAll(b, []string{"<thi", "nk>", "hmm", "</thi", "nk>", "done"})

	var moveTo *Emission
	var plain []string
	for i := range emissions {
		e := &emissions[i]
		if e.Kind == EmitMoveToThinking {
			moveTo = e
		}
		if e.Kind == EmitStream && !e.IsPendingThinking {
			plain = append(plain, e.Text)
		}
	}

	require.NotNil(t, moveTo)
	assert.Equal(t, "hmm", moveTo.Text)
	assert.Equal(t, []string{"done"}, plain)
}
