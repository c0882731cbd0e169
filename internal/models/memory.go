package models

// PreferenceMemory is what the advisor has learned about one user's taste:
// a signed score per relationship and tone, plus the interaction log.
type PreferenceMemory struct {
	Relationships map[string]map[Tone]int `json:"relationship_preferences"`
	History       []Interaction           `json:"history"`
}

// NewPreferenceMemory returns an empty memory with initialised maps.
func NewPreferenceMemory() PreferenceMemory {
	return PreferenceMemory{
		Relationships: make(map[string]map[Tone]int),
		History:       []Interaction{},
	}
}

// Score returns the learned score for the pair. Pairs never scored are 0.
func (m *PreferenceMemory) Score(relationship string, tone Tone) int {
	return m.Relationships[relationship][tone]
}

// Apply records the interaction and moves the score of its relationship and
// tone one step up when accepted, one step down otherwise. It returns the new
// score. Scores are unbounded.
func (m *PreferenceMemory) Apply(in Interaction) int {
	if m.Relationships == nil {
		m.Relationships = make(map[string]map[Tone]int)
	}
	rel := in.Message.Relationship
	tones, ok := m.Relationships[rel]
	if !ok {
		tones = make(map[Tone]int)
		m.Relationships[rel] = tones
	}

	score := tones[in.Message.Tone]
	if in.Accepted {
		score++
	} else {
		score--
	}
	tones[in.Message.Tone] = score

	m.History = append(m.History, in)
	return score
}

// TrimHistory drops the oldest interactions so at most max remain.
// max <= 0 leaves the history untouched.
func (m *PreferenceMemory) TrimHistory(max int) int {
	if max <= 0 || len(m.History) <= max {
		return 0
	}
	dropped := len(m.History) - max
	kept := make([]Interaction, max)
	copy(kept, m.History[dropped:])
	m.History = kept
	return dropped
}
