package memory

import (
	"context"
	"fmt"
	"strings"
)

// Knowledge implements ports.KnowledgeSource over a static topic map. Lookup
// is substring based so that a classifier topic like "baggage allowance"
// still hits an entry keyed "baggage".
type Knowledge struct {
	entries map[string]string
}

// NewKnowledge creates a knowledge source from topic -> answer pairs.
func NewKnowledge(entries map[string]string) *Knowledge {
	normalized := make(map[string]string, len(entries))
	for topic, answer := range entries {
		normalized[strings.ToLower(topic)] = answer
	}
	return &Knowledge{entries: normalized}
}

// Answer returns the canned answer for a topic.
func (k *Knowledge) Answer(ctx context.Context, topic string) (string, error) {
	needle := strings.ToLower(topic)
	if answer, ok := k.entries[needle]; ok {
		return answer, nil
	}
	for key, answer := range k.entries {
		if strings.Contains(needle, key) || strings.Contains(key, needle) {
			return answer, nil
		}
	}
	return "", fmt.Errorf("no answer for topic %q", topic)
}
