package analytics

import (
	"github.com/trailhq/jobtrail/internal/daterange"
)

// MetricPoint is the common name/value shape consumed by chart
// aggregations
type MetricPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// TimelinePoint is one calendar-month bucket of the trend timeline.
// Buckets with no data are emitted with zero counts so chart lines stay
// continuous.
type TimelinePoint struct {
	Month        string `json:"month"` // YYYY-MM
	Applications int    `json:"applications"`
	Interviews   int    `json:"interviews"`
	Offers       int    `json:"offers"`
}

// Snapshot is the full bundle of derived metrics for one population and
// date range. Percentages are kept unrounded; rounding happens at
// presentation time only.
type Snapshot struct {
	Range daterange.Range `json:"range"`

	TotalInRange       int `json:"total_in_range"`
	RespondedInRange   int `json:"responded_in_range"`
	InterviewedInRange int `json:"interviewed_in_range"`
	OffersInRange      int `json:"offers_in_range"`

	ResponseRate    float64 `json:"response_rate"`     // percent, [0, 100]
	InterviewRate   float64 `json:"interview_rate"`    // percent, [0, 100]
	TimeToOfferDays float64 `json:"time_to_offer_days"` // mean, 0 when no offers in range

	StageDistribution []MetricPoint   `json:"stage_distribution"`
	TypeDistribution  []MetricPoint   `json:"type_distribution"`
	Timeline          []TimelinePoint `json:"timeline"`
}

// Classifier maps stage names to the conventional interview-like and
// offer-like roles. The mapping is configured, not hardcoded, so custom
// workflows keep working.
type Classifier struct {
	interview map[string]bool
	offer     map[string]bool
}

// NewClassifier builds a classifier from configured stage name lists.
// Empty lists fall back to the default stage names.
func NewClassifier(interviewStages, offerStages []string) *Classifier {
	if len(interviewStages) == 0 {
		interviewStages = []string{"Interview"}
	}
	if len(offerStages) == 0 {
		offerStages = []string{"Offer"}
	}

	c := &Classifier{
		interview: make(map[string]bool, len(interviewStages)),
		offer:     make(map[string]bool, len(offerStages)),
	}
	for _, name := range interviewStages {
		c.interview[name] = true
	}
	for _, name := range offerStages {
		c.offer[name] = true
	}
	return c
}

// IsInterview reports whether a stage counts as interview-like
func (c *Classifier) IsInterview(stage string) bool {
	return c.interview[stage]
}

// IsOffer reports whether a stage counts as offer-like
func (c *Classifier) IsOffer(stage string) bool {
	return c.offer[stage]
}

// IsInterviewOrBeyond reports whether a stage counts toward the
// interview rate: interview-like stages and offer-like stages both
// qualify (an application that went straight to offer reached
// interviews too).
func (c *Classifier) IsInterviewOrBeyond(stage string) bool {
	return c.interview[stage] || c.offer[stage]
}
