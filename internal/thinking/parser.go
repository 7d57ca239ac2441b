// Package thinking implements the Thinking Parser: optimistic passthrough
// of every token with retroactive relocation of the thinking region once
// its closing tag (or, for special profiles, the response-start marker)
// is observed.
package thinking

import (
	"strings"
	"sync/atomic"

	"streamchat-orchestrator/internal/domain"
)

// EmissionKind enumerates the outputs a Buffer can produce for one Feed
// call.
type EmissionKind string

const (
	EmitStream           EmissionKind = "stream"
	EmitMoveToThinking   EmissionKind = "move_to_thinking"
	EmitThinkingComplete EmissionKind = "thinking_complete"
)

// Emission is one unit of output from Feed. Text is the main lane payload
// for EmitStream and the relocated thinking interior for
// EmitMoveToThinking; PendingTokens is populated only for
// EmitMoveToThinking, per the push-channel event vocabulary in §6.
type Emission struct {
	Kind              EmissionKind
	Text              string
	MessageID         string
	IsPendingThinking bool
	PendingTokens     []string
}

// SpecialGPTOSS marks the model family where the response-start marker
// itself terminates the thinking region instead of a dedicated end tag.
const SpecialGPTOSS = "gpt-oss"

type phase int

const (
	phaseNormal phase = iota
	phaseThinking
	phaseResponse
)

var messageIDSeq atomic.Int64

func nextMessageID() string {
	n := messageIDSeq.Add(1)
	return "think_" + itoa(n)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Buffer holds the per-chat thinking-parser state described in §4.5: the
// accumulated full content plus the bookkeeping needed to emit optimistic
// pending tokens and later relocate them.
type Buffer struct {
	Profile domain.ModelProfile

	fullContent string
	processedUpTo int
	phase phase

	hasThinkingStarted bool
	isInThinking       bool
	thinkingInteriorStart int
	thinkingMessageID  string
	pendingThinkingTokens []string

	isInResponseTags   bool
	hasResponseStarted bool
}

func NewBuffer(profile domain.ModelProfile) *Buffer {
	return &Buffer{Profile: profile}
}

// Feed appends one arriving token and returns the emissions it produces.
// It never blocks and never buffers more than the current thinking region's
// pending tokens, per the "optimistic passthrough" strategy.
func (b *Buffer) Feed(token string) []Emission {
	b.fullContent += token

	if !b.Profile.SupportsThinking {
		return []Emission{{Kind: EmitStream, Text: token}}
	}

	var out []Emission
	for {
		switch b.phase {
		case phaseNormal:
			if !b.stepNormal(&out) {
				return out
			}
		case phaseThinking:
			if !b.stepThinking(&out) {
				return out
			}
		case phaseResponse:
			if !b.stepResponse(&out) {
				return out
			}
		}
	}
}

// stepNormal handles plain streaming, thinking-tag detection, and (for
// already-started chats) response-tag detection. Returns advanced=false
// when there is nothing further to consume from the current fullContent
// this call.
func (b *Buffer) stepNormal(out *[]Emission) bool {
	if !b.hasThinkingStarted {
		remainder := b.fullContent[b.processedUpTo:]
		idx := strings.Index(remainder, b.Profile.ThinkStart)
		if idx == -1 {
			b.flushSafe(out, remainder, b.Profile.ThinkStart)
			return false
		}

		abs := b.processedUpTo + idx
		if pre := b.fullContent[b.processedUpTo:abs]; pre != "" {
			*out = append(*out, Emission{Kind: EmitStream, Text: pre})
		}

		afterStartAbs := abs + len(b.Profile.ThinkStart)
		if b.Profile.ThinkEnd != "" && strings.HasPrefix(b.fullContent[afterStartAbs:], b.Profile.ThinkEnd) {
			// Empty pair arrived whole: strip both tags, stay in normal mode.
			b.processedUpTo = afterStartAbs + len(b.Profile.ThinkEnd)
			return true
		}

		b.hasThinkingStarted = true
		b.isInThinking = true
		b.thinkingMessageID = nextMessageID()
		b.thinkingInteriorStart = afterStartAbs
		b.pendingThinkingTokens = nil
		b.processedUpTo = afterStartAbs
		b.phase = phaseThinking
		return true
	}

	if b.Profile.ResponseStart != "" && !b.hasResponseStarted {
		remainder := b.fullContent[b.processedUpTo:]
		idx := strings.Index(remainder, b.Profile.ResponseStart)
		if idx != -1 {
			abs := b.processedUpTo + idx
			if pre := b.fullContent[b.processedUpTo:abs]; pre != "" {
				*out = append(*out, Emission{Kind: EmitStream, Text: pre})
			}
			b.isInResponseTags = true
			b.hasResponseStarted = true
			b.processedUpTo = abs + len(b.Profile.ResponseStart)
			b.phase = phaseResponse
			return true
		}
		b.flushSafe(out, remainder, b.Profile.ResponseStart)
		return false
	}

	b.flushPlain(out)
	return false
}

// stepThinking consumes content while inside a thinking region, emitting
// optimistic pending tokens and detecting the region's terminator (the
// standard thinkEnd tag, or for special profiles the responseStart marker).
func (b *Buffer) stepThinking(out *[]Emission) bool {
	remainder := b.fullContent[b.processedUpTo:]

	endIdx := -1
	terminatorLen := 0
	isSpecialTerminator := false
	if b.Profile.ThinkEnd != "" {
		if i := strings.Index(remainder, b.Profile.ThinkEnd); i != -1 {
			endIdx, terminatorLen = i, len(b.Profile.ThinkEnd)
		}
	}
	if b.Profile.SpecialProfile == SpecialGPTOSS && b.Profile.ResponseStart != "" {
		if i := strings.Index(remainder, b.Profile.ResponseStart); i != -1 {
			if endIdx == -1 || i < endIdx {
				endIdx, terminatorLen, isSpecialTerminator = i, len(b.Profile.ResponseStart), true
			}
		}
	}

	if endIdx == -1 {
		safeLen := b.safeFlushLen(remainder, b.Profile.ThinkEnd, specialTerminator(b.Profile))
		if safe := remainder[:safeLen]; safe != "" {
			*out = append(*out, Emission{
				Kind: EmitStream, Text: safe,
				MessageID: b.thinkingMessageID, IsPendingThinking: true,
			})
			b.pendingThinkingTokens = append(b.pendingThinkingTokens, safe)
			b.processedUpTo += safeLen
		}
		return false
	}

	abs := b.processedUpTo + endIdx
	if pre := b.fullContent[b.processedUpTo:abs]; pre != "" {
		*out = append(*out, Emission{
			Kind: EmitStream, Text: pre,
			MessageID: b.thinkingMessageID, IsPendingThinking: true,
		})
		b.pendingThinkingTokens = append(b.pendingThinkingTokens, pre)
	}

	interior := b.fullContent[b.thinkingInteriorStart:abs]
	if interior != "" {
		*out = append(*out, Emission{
			Kind: EmitMoveToThinking, Text: interior,
			MessageID: b.thinkingMessageID, PendingTokens: append([]string(nil), b.pendingThinkingTokens...),
		})
		*out = append(*out, Emission{Kind: EmitThinkingComplete, MessageID: b.thinkingMessageID})
	}

	b.pendingThinkingTokens = nil
	b.isInThinking = false
	b.processedUpTo = abs + terminatorLen

	if isSpecialTerminator {
		b.isInResponseTags = true
		b.hasResponseStarted = true
		b.phase = phaseResponse
	} else {
		b.phase = phaseNormal
	}
	return true
}

// stepResponse consumes content inside a response-tag wrapper, emitting
// plain stream tokens and closing the wrapper on responseEnd.
func (b *Buffer) stepResponse(out *[]Emission) bool {
	remainder := b.fullContent[b.processedUpTo:]

	if b.Profile.ResponseEnd == "" {
		if remainder != "" {
			*out = append(*out, Emission{Kind: EmitStream, Text: remainder})
			b.processedUpTo = len(b.fullContent)
		}
		return false
	}

	idx := strings.Index(remainder, b.Profile.ResponseEnd)
	if idx == -1 {
		safeLen := b.safeFlushLen(remainder, b.Profile.ResponseEnd, "")
		if safe := remainder[:safeLen]; safe != "" {
			*out = append(*out, Emission{Kind: EmitStream, Text: safe})
			b.processedUpTo += safeLen
		}
		return false
	}

	abs := b.processedUpTo + idx
	if pre := b.fullContent[b.processedUpTo:abs]; pre != "" {
		*out = append(*out, Emission{Kind: EmitStream, Text: pre})
	}
	b.isInResponseTags = false
	b.processedUpTo = abs + len(b.Profile.ResponseEnd)
	b.phase = phaseNormal
	return true
}

func (b *Buffer) flushPlain(out *[]Emission) {
	if text := b.fullContent[b.processedUpTo:]; text != "" {
		*out = append(*out, Emission{Kind: EmitStream, Text: text})
		b.processedUpTo = len(b.fullContent)
	}
}

// flushSafe emits the portion of remainder that cannot be the start of tag,
// withholding any trailing partial match so a tag split across two
// arriving tokens is still detected intact on the next Feed call.
func (b *Buffer) flushSafe(out *[]Emission, remainder, tag string) {
	safeLen := b.safeFlushLen(remainder, tag, "")
	if safe := remainder[:safeLen]; safe != "" {
		*out = append(*out, Emission{Kind: EmitStream, Text: safe})
		b.processedUpTo += safeLen
	}
}

// safeFlushLen returns how many leading bytes of remainder are guaranteed
// not to be a prefix of either tag, i.e. safe to emit now without risking a
// tag reassembled from a later token going undetected.
func (b *Buffer) safeFlushLen(remainder, tag1, tag2 string) int {
	n := len(remainder)
	safe := n
	for _, tag := range [2]string{tag1, tag2} {
		if tag == "" {
			continue
		}
		maxK := len(tag) - 1
		if maxK > n {
			maxK = n
		}
		for k := maxK; k > 0; k-- {
			if strings.HasSuffix(remainder, tag[:k]) {
				if n-k < safe {
					safe = n - k
				}
				break
			}
		}
	}
	return safe
}

// specialTerminator returns the marker that double-duties as the thinking
// terminator for special profiles, or "" otherwise.
func specialTerminator(p domain.ModelProfile) string {
	if p.SpecialProfile == SpecialGPTOSS {
		return p.ResponseStart
	}
	return ""
}

// FullContent returns everything fed so far, for diagnostics/tests.
func (b *Buffer) FullContent() string { return b.fullContent }
