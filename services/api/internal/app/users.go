package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"sofia/pkg/domain"
	"sofia/pkg/store"
)

const historySourceManual = "manual"

// AuthResult is returned by Authenticate. Created is true when the user did not exist yet.
type AuthResult struct {
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
	Created bool        `json:"-"`
}

// Profile aggregates everything known about one user.
type Profile struct {
	User            domain.User             `json:"user"`
	AboutMe         *domain.AboutMeProfile  `json:"aboutMe"`
	StoryChapters   []domain.StoryChapter   `json:"storyChapters"`
	Goals           []domain.Goal           `json:"goals"`
	Concerns        []domain.Concern        `json:"concerns"`
	Values          []domain.Value          `json:"values"`
	EducationTopics []domain.EducationTopic `json:"educationTopics"`
}

// AboutMeInput replaces the editable About Me fields.
type AboutMeInput struct {
	BestLifeElements     []domain.BestLifeElement `json:"bestLifeElements"`
	Concerns             []domain.ConcernItem     `json:"concerns"`
	ConfidenceLevel      string                   `json:"confidenceLevel"`
	UserDefinedNextSteps []string                 `json:"userDefinedNextSteps"`
}

// Authenticate signs a user in by name, creating the user and an empty About Me
// profile on first use.
func (a *App) Authenticate(ctx context.Context, name string, age int) (AuthResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return AuthResult{}, domain.Validation("name is required")
	}
	if age < 0 {
		return AuthResult{}, domain.Validation("age must not be negative")
	}

	now := a.timestamp()
	user, ok, err := a.store.GetUserByName(ctx, name)
	if err != nil {
		return AuthResult{}, domain.Dependency("authentication failed", err)
	}
	created := false
	if !ok {
		user, created, err = a.createUser(ctx, name, age, now)
		if err != nil {
			return AuthResult{}, domain.Dependency("authentication failed", err)
		}
	}
	if !created {
		if err := a.store.TouchUser(ctx, user.ID, now); err != nil {
			return AuthResult{}, domain.Dependency("authentication failed", err)
		}
		user.LastVisit = now
	}

	token, err := a.tokens.Issue(user.ID, user.Name)
	if err != nil {
		return AuthResult{}, domain.Dependency("authentication failed", err)
	}
	return AuthResult{Token: token, User: user, Created: created}, nil
}

// createUser inserts the user and an empty About Me profile. When a concurrent
// sign-in registered the name first, that user is returned with created false.
func (a *App) createUser(ctx context.Context, name string, age int, now time.Time) (domain.User, bool, error) {
	user := domain.User{
		ID:               a.newID(),
		Name:             name,
		Age:              age,
		Role:             a.roleFor(name),
		IsActive:         true,
		RegistrationDate: now,
		LastVisit:        now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return domain.User{}, false, err
		}
		existing, ok, err := a.store.GetUserByName(ctx, name)
		if err != nil {
			return domain.User{}, false, err
		}
		if !ok {
			return domain.User{}, false, fmt.Errorf("user %q conflicted but was not found", name)
		}
		return existing, false, nil
	}
	profile := domain.AboutMeProfile{
		ID:                   a.newID(),
		UserID:               user.ID,
		BestLifeElements:     []domain.BestLifeElement{},
		Concerns:             []domain.ConcernItem{},
		UserDefinedNextSteps: []string{},
		UpdatedAt:            now,
	}
	if err := a.store.SaveAboutMe(ctx, profile); err != nil {
		return domain.User{}, false, err
	}
	return user, true, nil
}

func (a *App) roleFor(name string) domain.UserRole {
	if _, ok := a.admins[name]; ok {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

// UserFromToken resolves a bearer token to its active user.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return domain.User{}, domain.Unauthenticated("invalid or expired token")
	}
	user, ok, err := a.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return domain.User{}, domain.Dependency("load user", err)
	}
	if !ok || !user.IsActive {
		return domain.User{}, domain.Unauthenticated("invalid or expired token")
	}
	return user, nil
}

// Profile loads the user and every profile collection in parallel.
func (a *App) Profile(ctx context.Context, userID string) (Profile, error) {
	var (
		out     Profile
		found   bool
		aboutMe domain.AboutMeProfile
		hasMe   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.User, found, err = a.store.GetUserByID(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		aboutMe, hasMe, err = a.store.GetAboutMe(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.StoryChapters, err = a.store.ListStoryChapters(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Goals, err = a.store.ListGoals(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Concerns, err = a.store.ListConcerns(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Values, err = a.store.ListValues(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.EducationTopics, err = a.store.ListEducationTopics(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Profile{}, domain.Dependency("failed to fetch profile", err)
	}
	if !found {
		return Profile{}, domain.NotFound("user not found")
	}
	if hasMe {
		out.AboutMe = &aboutMe
	}
	return out, nil
}

// UpdateAboutMe replaces the About Me profile. Each changed field of an existing
// profile is appended to the variable history with source "manual".
func (a *App) UpdateAboutMe(ctx context.Context, userID string, in AboutMeInput) (domain.AboutMeProfile, error) {
	current, exists, err := a.store.GetAboutMe(ctx, userID)
	if err != nil {
		return domain.AboutMeProfile{}, domain.Dependency("failed to update About Me profile", err)
	}

	now := a.timestamp()
	elements := nonNil(in.BestLifeElements)
	concerns := nonNil(in.Concerns)
	steps := nonNil(in.UserDefinedNextSteps)

	next := current
	if !exists {
		next = domain.AboutMeProfile{ID: a.newID(), UserID: userID}
	}
	next.BestLifeElements = elements
	next.Concerns = concerns
	next.ConfidenceLevel = in.ConfidenceLevel
	next.UserDefinedNextSteps = steps
	next.ProfileCompleteness = domain.Completeness(elements, concerns, in.ConfidenceLevel)
	next.UpdatedAt = now
	if !exists || current.ConfidenceLevel != in.ConfidenceLevel {
		next.ConfidenceTimestamp = &now
	}

	var changes []domain.ProfileVariableHistory
	if exists {
		details, _ := json.Marshal(map[string]string{
			"action":    "about_me_update",
			"timestamp": now.Format("2006-01-02T15:04:05.000Z07:00"),
		})
		track := func(name, value, previous string) {
			if value == previous {
				return
			}
			changes = append(changes, domain.ProfileVariableHistory{
				ID:            a.newID(),
				UserID:        userID,
				VariableName:  name,
				VariableValue: value,
				PreviousValue: previous,
				Source:        historySourceManual,
				SourceDetails: details,
				Timestamp:     now,
			})
		}
		track("bestLifeElements", jsonString(elements), jsonString(nonNil(current.BestLifeElements)))
		track("concerns", jsonString(concerns), jsonString(nonNil(current.Concerns)))
		track("confidenceLevel", in.ConfidenceLevel, current.ConfidenceLevel)
	}

	if err := a.store.SaveAboutMe(ctx, next); err != nil {
		return domain.AboutMeProfile{}, domain.Dependency("failed to update About Me profile", err)
	}
	if len(changes) > 0 {
		if err := a.store.AppendProfileHistory(ctx, changes...); err != nil {
			return domain.AboutMeProfile{}, domain.Dependency("failed to record profile history", err)
		}
	}
	return next, nil
}

// authorizeSubject allows a user to act on their own records, and admins on anyone's.
func authorizeSubject(actor domain.User, subjectID string) error {
	if actor.ID == subjectID || actor.Role == domain.RoleAdmin {
		return nil
	}
	return domain.Forbidden("forbidden")
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func jsonString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
