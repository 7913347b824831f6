package app

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
	"sofia/pkg/alignment"
	"sofia/pkg/domain"
)

// AlignmentReport is a scored response plus its enhanced rewrite.
type AlignmentReport struct {
	alignment.Result
	EnhancedResponse string `json:"enhancedResponse"`
}

// ScoreResponse scores a candidate companion response against the user's profile.
// Low-scoring responses get an enhanced version built from the recommendations.
func (a *App) ScoreResponse(ctx context.Context, userID, response string) (AlignmentReport, error) {
	if strings.TrimSpace(response) == "" {
		return AlignmentReport{}, domain.Validation("response is required")
	}
	profile, err := a.alignmentProfile(ctx, userID)
	if err != nil {
		return AlignmentReport{}, err
	}
	res := a.scorer.Score(profile, response)
	a.monitor.Observe(res)
	report := AlignmentReport{Result: res, EnhancedResponse: response}
	if !res.Aligned() {
		report.EnhancedResponse = alignment.Enhance(response, res.Recommendations)
	}
	return report, nil
}

func (a *App) ValidateTopic(ctx context.Context, userID, topic string) (alignment.TopicAlignment, error) {
	if strings.TrimSpace(topic) == "" {
		return alignment.TopicAlignment{}, domain.Validation("topic is required")
	}
	profile, err := a.alignmentProfile(ctx, userID)
	if err != nil {
		return alignment.TopicAlignment{}, err
	}
	return alignment.ValidateTopic(profile, topic), nil
}

func (a *App) ConversationContext(ctx context.Context, userID string) (alignment.Context, error) {
	profile, err := a.alignmentProfile(ctx, userID)
	if err != nil {
		return alignment.Context{}, err
	}
	return alignment.ConversationContext(profile), nil
}

// AlignmentStats summarises the most recent scored responses.
func (a *App) AlignmentStats() alignment.Stats {
	return a.monitor.Stats()
}

func (a *App) alignmentProfile(ctx context.Context, userID string) (alignment.Profile, error) {
	var (
		aboutMe domain.AboutMeProfile
		goals   []domain.Goal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		aboutMe, _, err = a.store.GetAboutMe(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		goals, err = a.store.ListGoals(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return alignment.Profile{}, domain.Dependency("failed to load profile", err)
	}
	return alignment.Profile{
		BestLifeElements: aboutMe.BestLifeElements,
		Concerns:         aboutMe.Concerns,
		ConfidenceLevel:  aboutMe.ConfidenceLevel,
		Goals:            goals,
	}, nil
}
