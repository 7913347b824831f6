package alignment

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"sofia/pkg/domain"
)

const lowAlignmentThreshold = 3

const (
	MatchBestLife   = "best_life_element"
	MatchConcern    = "concern"
	MatchActiveGoal = "active_goal"

	FindingNoValueAlignment = "no_value_alignment"
)

// RecommendationType names a recommendation category. Enhance prefers them in
// declaration order.
type RecommendationType string

const (
	ReferenceBestLife RecommendationType = "reference_best_life"
	AddressConcern    RecommendationType = "address_concern"
	AlignWithGoal     RecommendationType = "align_with_goal"
)

var categoryOrder = []RecommendationType{ReferenceBestLife, AddressConcern, AlignWithGoal}

// Profile is what a response is scored against.
type Profile struct {
	BestLifeElements []domain.BestLifeElement `json:"bestLifeElements"`
	Concerns         []domain.ConcernItem     `json:"concerns"`
	ConfidenceLevel  string                   `json:"confidenceLevel"`
	Goals            []domain.Goal            `json:"goals"`
}

// ActiveGoals returns the goals with status active, in order.
func (p Profile) ActiveGoals() []domain.Goal {
	var active []domain.Goal
	for _, g := range p.Goals {
		if g.Status == domain.GoalActive {
			active = append(active, g)
		}
	}
	return active
}

type Match struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

type Finding struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Recommendation suggests one profile item to bring into the response.
// Subject is the element, concern or goal text it refers to.
type Recommendation struct {
	Type       RecommendationType `json:"type"`
	Suggestion string             `json:"suggestion"`
	Subject    string             `json:"subject"`
}

type Result struct {
	Score           int              `json:"alignmentScore"`
	ValueMatches    []Match          `json:"valueMatches"`
	ConcernMatches  []Match          `json:"concernMatches"`
	Findings        []Finding        `json:"misalignments"`
	Recommendations []Recommendation `json:"recommendations"`
	CheckedAt       time.Time        `json:"timestamp"`
}

// Aligned reports whether the score reached the recommendation threshold.
func (r Result) Aligned() bool {
	return r.Score >= lowAlignmentThreshold
}

// Picker returns an index in [0, n). n is always at least 1.
type Picker func(n int) int

// First always picks the first candidate.
func First(int) int { return 0 }

type Scorer struct {
	pick Picker
	now  func() time.Time
}

type Option func(*Scorer)

func WithPicker(p Picker) Option {
	return func(s *Scorer) {
		if p != nil {
			s.pick = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{pick: rand.IntN, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score matches response against the profile: 2 points per best-life element,
// 2 per concern and 1 per active goal found in the text, case-insensitively.
func (s *Scorer) Score(p Profile, response string) Result {
	text := strings.ToLower(response)
	res := Result{
		ValueMatches:    []Match{},
		ConcernMatches:  []Match{},
		Findings:        []Finding{},
		Recommendations: []Recommendation{},
		CheckedAt:       s.now().UTC(),
	}

	for _, e := range p.BestLifeElements {
		if contains(text, e.Element) || contains(text, e.Description) {
			res.ValueMatches = append(res.ValueMatches, Match{Type: MatchBestLife, Text: e.Element, Description: e.Description})
			res.Score += 2
		}
	}
	for _, c := range p.Concerns {
		if contains(text, c.Concern) || contains(text, c.Description) {
			res.ConcernMatches = append(res.ConcernMatches, Match{Type: MatchConcern, Text: c.Concern, Description: c.Description})
			res.Score += 2
		}
	}
	activeGoals := p.ActiveGoals()
	for _, g := range activeGoals {
		if contains(text, g.Goal) {
			res.ValueMatches = append(res.ValueMatches, Match{Type: MatchActiveGoal, Text: g.Goal, Description: g.Description})
			res.Score++
		}
	}

	if res.Score == 0 {
		res.Findings = append(res.Findings, Finding{
			Type:        FindingNoValueAlignment,
			Description: "Response does not reference user values, concerns, or goals",
		})
	}
	if res.Score < lowAlignmentThreshold {
		res.Recommendations = s.recommend(p, activeGoals)
	}
	return res
}

func (s *Scorer) recommend(p Profile, activeGoals []domain.Goal) []Recommendation {
	recs := []Recommendation{}
	if n := len(p.BestLifeElements); n > 0 {
		e := p.BestLifeElements[s.index(n)]
		recs = append(recs, Recommendation{
			Type:       ReferenceBestLife,
			Suggestion: fmt.Sprintf("Reference the user's value: %q", e.Element),
			Subject:    e.Element,
		})
	}
	if n := len(p.Concerns); n > 0 {
		c := p.Concerns[s.index(n)]
		recs = append(recs, Recommendation{
			Type:       AddressConcern,
			Suggestion: fmt.Sprintf("Address the user's concern: %q", c.Concern),
			Subject:    c.Concern,
		})
	}
	if n := len(activeGoals); n > 0 {
		g := activeGoals[s.index(n)]
		recs = append(recs, Recommendation{
			Type:       AlignWithGoal,
			Suggestion: fmt.Sprintf("Connect to the user's goal: %q", g.Goal),
			Subject:    g.Goal,
		})
	}
	return recs
}

// index clamps the picker's answer so a misbehaving picker cannot panic the scorer.
func (s *Scorer) index(n int) int {
	if n == 1 {
		return 0
	}
	i := s.pick(n)
	if i < 0 || i >= n {
		return 0
	}
	return i
}

// Enhance appends one follow-up sentence for the highest-priority
// recommendation. Priority is the fixed category order, not list position.
func Enhance(response string, recs []Recommendation) string {
	for _, category := range categoryOrder {
		for _, rec := range recs {
			if rec.Type != category || strings.TrimSpace(rec.Subject) == "" {
				continue
			}
			subject := strings.ToLower(rec.Subject)
			switch category {
			case ReferenceBestLife:
				return response + "\n\nI want to make sure this aligns with what matters most to you. I know that " +
					subject + " is important in your life. How does this relate to that?"
			case AddressConcern:
				return response + "\n\nI also want to address your concern about " +
					subject + ". How does this information help with that?"
			case AlignWithGoal:
				return response + "\n\nThis connects to your goal of " +
					subject + ". How does this help you move toward that?"
			}
		}
	}
	return response
}

func contains(text, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(text, strings.ToLower(needle))
}
