package domain

import (
	"fmt"
	"sort"
)

// RatingScale is one point on the 1-5 rating scale, keyed as a string
// ("1".."5") so that rubric documents round-trip through JSON and YAML
// unchanged.
type RatingScale string

// The five points of the rating scale, lowest first.
const (
	Rating1 RatingScale = "1"
	Rating2 RatingScale = "2"
	Rating3 RatingScale = "3"
	Rating4 RatingScale = "4"
	Rating5 RatingScale = "5"
)

// RatingScales lists every scale point in ascending order.
var RatingScales = []RatingScale{Rating1, Rating2, Rating3, Rating4, Rating5}

// Criterion is one weighted dimension of a rubric.
type Criterion struct {
	// ID is the stable key that criterion scores refer to.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Name is the human-readable label, e.g. "Company Vision".
	Name string `json:"name" yaml:"name" validate:"required"`

	Description string `json:"description" yaml:"description"`

	// Weight is in [0,1]. Weights across a rubric are not required to sum
	// to 1; see WeightedTotal for how they enter the total score.
	Weight float64 `json:"weight" yaml:"weight" validate:"gte=0,lte=1"`

	// RatingDescriptions maps scale points to what each point means for
	// this criterion.
	RatingDescriptions map[RatingScale]string `json:"ratingDescriptions" yaml:"ratingDescriptions" validate:"dive,keys,oneof=1 2 3 4 5,endkeys"`
}

// Rubric is a named set of weighted criteria. A rubric is treated as
// immutable once any evaluation references it.
type Rubric struct {
	ID          int64       `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description" yaml:"description"`
	Criteria    []Criterion `json:"criteria" yaml:"criteria" validate:"required,min=1,unique=ID,dive"`
	MaxScore    float64     `json:"maxScore" yaml:"maxScore"`

	// PassingScore is optional; nil means the rubric has no pass mark.
	PassingScore *float64 `json:"passingScore,omitempty" yaml:"passingScore,omitempty"`
}

// Criterion returns the criterion with the given id.
func (r *Rubric) Criterion(id string) (Criterion, bool) {
	for _, c := range r.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// Validate checks the rubric against its schema. An empty criteria list is
// reported as ErrEmptyRubric so callers can distinguish it.
func (r *Rubric) Validate() error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rubric %d: %w", r.ID, ErrEmptyRubric)
	}
	return validationErrorFrom("Rubric", validate.Struct(r))
}

// SortedRatings returns the criterion's rating descriptions in ascending
// scale order. Scale points without a description are omitted.
func (c Criterion) SortedRatings() []RatingEntry {
	entries := make([]RatingEntry, 0, len(c.RatingDescriptions))
	for scale, desc := range c.RatingDescriptions {
		entries = append(entries, RatingEntry{Scale: scale, Description: desc})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Scale < entries[j].Scale })
	return entries
}

// RatingEntry pairs a scale point with its description.
type RatingEntry struct {
	Scale       RatingScale
	Description string
}
