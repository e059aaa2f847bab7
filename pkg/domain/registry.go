package domain

import "sort"

// StageRegistry maps a stage name to the account expected to confirm the
// stage that follows it. A nil (or empty) value marks the stage terminal.
type StageRegistry map[string]*string

// NewStageRegistry builds a registry from plain strings; an empty value is terminal.
func NewStageRegistry(transitions map[string]string) StageRegistry {
	reg := make(StageRegistry, len(transitions))
	for stage, actor := range transitions {
		if actor == "" {
			reg[stage] = nil
			continue
		}
		a := actor
		reg[stage] = &a
	}
	return reg
}

// Defined reports whether stage has an entry, terminal or not.
func (r StageRegistry) Defined(stage string) bool {
	_, ok := r[stage]
	return ok
}

// NextActor returns the account expected after stage. ok is false when the
// stage is absent or terminal.
func (r StageRegistry) NextActor(stage string) (string, bool) {
	actor, ok := r[stage]
	if !ok || actor == nil || *actor == "" {
		return "", false
	}
	return *actor, true
}

// ExpectedAfter is NextActor expressed as the nullable field stored on a lot.
func (r StageRegistry) ExpectedAfter(stage string) *string {
	actor, ok := r.NextActor(stage)
	if !ok {
		return nil
	}
	return &actor
}

// Stages returns the registered stage names in lexical order.
func (r StageRegistry) Stages() []string {
	out := make([]string, 0, len(r))
	for stage := range r {
		out = append(out, stage)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy. A nil registry clones to nil so the
// "not initialized" state survives round trips.
func (r StageRegistry) Clone() StageRegistry {
	if r == nil {
		return nil
	}
	out := make(StageRegistry, len(r))
	for stage, actor := range r {
		out[stage] = cloneStringPtr(actor)
	}
	return out
}
