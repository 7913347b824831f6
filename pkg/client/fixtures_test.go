package client

import "sofia/pkg/domain"

func goalFixture() domain.Goal {
	return domain.Goal{Goal: "Walk every morning", Status: domain.GoalActive, Confidence: 6}
}
