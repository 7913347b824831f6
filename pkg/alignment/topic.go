package alignment

import "strings"

type TopicAlignment struct {
	Topic             string `json:"topic"`
	IsValueAligned    bool   `json:"isValueAligned"`
	Reasoning         string `json:"reasoning"`
	SuggestedApproach string `json:"suggestedApproach"`
}

// ValidateTopic checks a proposed topic against the best-life elements first,
// then the concerns. Either side containing the other counts as a match.
func ValidateTopic(p Profile, topic string) TopicAlignment {
	res := TopicAlignment{Topic: topic}
	t := strings.ToLower(strings.TrimSpace(topic))

	for _, e := range p.BestLifeElements {
		if overlaps(t, e.Element) {
			res.IsValueAligned = true
			res.Reasoning = "Topic aligns with your value: " + e.Element
			res.SuggestedApproach = "Proceed with topic exploration"
			return res
		}
	}
	for _, c := range p.Concerns {
		if overlaps(t, c.Concern) {
			res.IsValueAligned = true
			res.Reasoning = "Topic addresses your concern: " + c.Concern
			res.SuggestedApproach = "Address concern while maintaining value focus"
			return res
		}
	}
	res.Reasoning = "Topic may not directly align with current values/concerns"
	res.SuggestedApproach = "Consider if this serves the user's stated priorities"
	return res
}

func overlaps(topic, item string) bool {
	item = strings.ToLower(strings.TrimSpace(item))
	if topic == "" || item == "" {
		return false
	}
	return strings.Contains(topic, item) || strings.Contains(item, topic)
}

// Context is the profile summary that should steer a conversation.
type Context struct {
	UserValues      []string `json:"userValues"`
	UserConcerns    []string `json:"userConcerns"`
	ActiveGoals     []string `json:"activeGoals"`
	ConfidenceLevel string   `json:"confidenceLevel"`
}

func ConversationContext(p Profile) Context {
	ctx := Context{
		UserValues:      make([]string, 0, len(p.BestLifeElements)),
		UserConcerns:    make([]string, 0, len(p.Concerns)),
		ActiveGoals:     []string{},
		ConfidenceLevel: p.ConfidenceLevel,
	}
	for _, e := range p.BestLifeElements {
		ctx.UserValues = append(ctx.UserValues, e.Element)
	}
	for _, c := range p.Concerns {
		ctx.UserConcerns = append(ctx.UserConcerns, c.Concern)
	}
	for _, g := range p.ActiveGoals() {
		ctx.ActiveGoals = append(ctx.ActiveGoals, g.Goal)
	}
	return ctx
}
