package agents

import (
	"slices"
	"strings"
)

// FallbackConfidence is reported when no rule matches a message.
const FallbackConfidence = 0.3

// Rule ties an intent to the capability that serves it and the domain
// vocabulary that signals it.
type Rule struct {
	Intent     string
	Capability string
	Keywords   []string
	Reply      string
}

// Classification is the outcome of matching one message against a rule set.
type Classification struct {
	Intent     string
	Capability string
	Reply      string
	Matched    []string
	Confidence float64
	Fallback   bool
}

// Classifier picks the rule with the most keyword hits. Ties go to the rule
// listed first. It never fails: unmatched messages get the fallback rule.
type Classifier struct {
	rules    []Rule
	fallback Rule
}

// NewClassifier lowercases all keywords once.
func NewClassifier(rules []Rule, fallback Rule) *Classifier {
	c := &Classifier{rules: make([]Rule, len(rules)), fallback: fallback}
	for i, r := range rules {
		r.Keywords = slices.Clone(r.Keywords)
		for j, kw := range r.Keywords {
			r.Keywords[j] = strings.ToLower(kw)
		}
		c.rules[i] = r
	}
	return c
}

// Classify scores message against every rule.
func (c *Classifier) Classify(message string) Classification {
	text := strings.ToLower(message)

	best := -1
	var bestHits []string
	for i, r := range c.rules {
		var hits []string
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) > len(bestHits) {
			best, bestHits = i, hits
		}
	}

	if best < 0 {
		return Classification{
			Intent:     c.fallback.Intent,
			Capability: c.fallback.Capability,
			Reply:      c.fallback.Reply,
			Confidence: FallbackConfidence,
			Fallback:   true,
		}
	}
	r := c.rules[best]
	return Classification{
		Intent:     r.Intent,
		Capability: r.Capability,
		Reply:      r.Reply,
		Matched:    bestHits,
		Confidence: confidenceFor(len(bestHits)),
	}
}

// Capabilities lists the distinct capabilities referenced by the rule set,
// fallback included, in declaration order.
func (c *Classifier) Capabilities() []string {
	var caps []string
	for _, r := range append(slices.Clone(c.rules), c.fallback) {
		if r.Capability != "" && !slices.Contains(caps, r.Capability) {
			caps = append(caps, r.Capability)
		}
	}
	return caps
}

func confidenceFor(hits int) float64 {
	return min(0.6+0.1*float64(hits), 0.95)
}
