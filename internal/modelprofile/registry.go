// Package modelprofile resolves a model id to its thinking-tag vocabulary.
// It is deliberately tiny and static: Upstream owns the actual model
// catalog, this only needs enough to drive the Thinking Parser correctly
// for the handful of families the orchestrator has to special-case.
package modelprofile

import "streamchat-orchestrator/internal/domain"

// Resolver looks up the ModelProfile for a model id.
type Resolver interface {
	Resolve(modelID string) domain.ModelProfile
}

// StaticRegistry is the default Resolver: a fixed table seeded at
// bootstrap, falling back to a pass-through profile for unknown ids.
type StaticRegistry struct {
	profiles map[string]domain.ModelProfile
}

func NewStaticRegistry() *StaticRegistry {
	r := &StaticRegistry{profiles: make(map[string]domain.ModelProfile)}
	r.Register(domain.ModelProfile{
		ModelID:          "deepseek-r1",
		SupportsThinking: true,
		ThinkStart:       "<think>",
		ThinkEnd:         "</think>",
	})
	r.Register(domain.ModelProfile{
		ModelID:          "qwq",
		SupportsThinking: true,
		ThinkStart:       "<think>",
		ThinkEnd:         "</think>",
	})
	r.Register(domain.ModelProfile{
		ModelID:          "gpt-oss",
		SupportsThinking: true,
		ThinkStart:       "<|channel|>analysis<|message|>",
		ThinkEnd:         "<|end|>",
		ResponseStart:    "<|start|>assistant<|message|>",
		SpecialProfile:   "gpt-oss",
	})
	return r
}

func (r *StaticRegistry) Register(p domain.ModelProfile) {
	r.profiles[p.ModelID] = p
}

// Resolve returns the configured profile for modelID, or a pass-through
// profile (supportsThinking = false) when the id is unknown — matching the
// data model's rule that all four tag strings are empty in that case.
func (r *StaticRegistry) Resolve(modelID string) domain.ModelProfile {
	if p, ok := r.profiles[modelID]; ok {
		return p
	}
	return domain.ModelProfile{ModelID: modelID, SupportsThinking: false}
}
