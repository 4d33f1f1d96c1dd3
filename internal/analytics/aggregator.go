package analytics

import (
	"sort"
	"time"

	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/daterange"
	"github.com/trailhq/jobtrail/internal/workflow"
)

// Aggregator reduces the application population and its audit logs into
// a metrics snapshot. Compute is a pure function over its inputs: no
// mutation, no I/O.
type Aggregator struct {
	classifier *Classifier
}

// NewAggregator creates an aggregator with the given stage classifier
func NewAggregator(classifier *Classifier) *Aggregator {
	return &Aggregator{classifier: classifier}
}

// Compute derives all metrics for the applications whose relevant dates
// fall inside rng. Population-level counts filter on DateApplied;
// transition metrics filter on the audit entry date. Both boundaries
// are inclusive.
func (a *Aggregator) Compute(apps []*application.Application, stages []workflow.Stage, rng daterange.Range) *Snapshot {
	snap := &Snapshot{Range: rng}

	population := make([]*application.Application, 0, len(apps))
	for _, app := range apps {
		if rng.Contains(app.DateApplied) {
			population = append(population, app)
		}
	}
	snap.TotalInRange = len(population)

	var offerDays []float64
	interviewMonths := make(map[string]int)
	offerMonths := make(map[string]int)

	for _, app := range population {
		initial := initialStage(app)

		responded := false
		interviewed := false
		var firstInterview, firstOffer *application.AuditEntry

		for i := range app.Logs {
			entry := &app.Logs[i]
			if !rng.Contains(entry.Date) {
				continue
			}
			if entry.FromStage != nil && entry.ToStage != initial {
				responded = true
			}
			if a.classifier.IsInterviewOrBeyond(entry.ToStage) && firstInterview == nil {
				interviewed = true
				firstInterview = entry
			}
			if a.classifier.IsOffer(entry.ToStage) && firstOffer == nil {
				firstOffer = entry
			}
		}

		if responded {
			snap.RespondedInRange++
		}
		if interviewed {
			snap.InterviewedInRange++
			interviewMonths[monthKey(firstInterview.Date)]++
		}
		if firstOffer != nil {
			snap.OffersInRange++
			offerMonths[monthKey(firstOffer.Date)]++
			if len(app.Logs) > 0 {
				days := firstOffer.Date.Sub(app.Logs[0].Date).Hours() / 24
				offerDays = append(offerDays, days)
			}
		}
	}

	if snap.TotalInRange > 0 {
		snap.ResponseRate = 100 * float64(snap.RespondedInRange) / float64(snap.TotalInRange)
		snap.InterviewRate = 100 * float64(snap.InterviewedInRange) / float64(snap.TotalInRange)
	}
	if len(offerDays) > 0 {
		sum := 0.0
		for _, d := range offerDays {
			sum += d
		}
		snap.TimeToOfferDays = sum / float64(len(offerDays))
	}

	snap.StageDistribution = a.stageDistribution(population, stages)
	snap.TypeDistribution = typeDistribution(population)
	snap.Timeline = a.timeline(population, rng, interviewMonths, offerMonths)

	return snap
}

// stageDistribution counts the population's current stages. Every
// workflow stage appears in the result, zeros included, in workflow
// order.
func (a *Aggregator) stageDistribution(population []*application.Application, stages []workflow.Stage) []MetricPoint {
	counts := make(map[string]int)
	for _, app := range population {
		counts[app.Stage]++
	}

	points := make([]MetricPoint, 0, len(stages))
	for _, s := range stages {
		points = append(points, MetricPoint{Name: s.Name, Value: float64(counts[s.Name])})
	}
	return points
}

func typeDistribution(population []*application.Application) []MetricPoint {
	counts := make(map[string]int)
	for _, app := range population {
		t := app.Type
		if t == "" {
			t = "Unspecified"
		}
		counts[t]++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]MetricPoint, 0, len(names))
	for _, name := range names {
		points = append(points, MetricPoint{Name: name, Value: float64(counts[name])})
	}
	return points
}

// timeline builds calendar-month buckets across the range. The start is
// clamped to the earliest DateApplied in the population so an "all
// time" range does not emit decades of empty buckets before the first
// application.
func (a *Aggregator) timeline(population []*application.Application, rng daterange.Range, interviewMonths, offerMonths map[string]int) []TimelinePoint {
	if len(population) == 0 {
		return nil
	}

	start := rng.From
	earliest := population[0].DateApplied
	for _, app := range population[1:] {
		if app.DateApplied.Before(earliest) {
			earliest = app.DateApplied
		}
	}
	if earliest.After(start) {
		start = earliest
	}

	created := make(map[string]int)
	for _, app := range population {
		created[monthKey(app.DateApplied)]++
	}

	var points []TimelinePoint
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	end := time.Date(rng.To.Year(), rng.To.Month(), 1, 0, 0, 0, 0, rng.To.Location())
	for !cur.After(end) {
		key := monthKey(cur)
		points = append(points, TimelinePoint{
			Month:        key,
			Applications: created[key],
			Interviews:   interviewMonths[key],
			Offers:       offerMonths[key],
		})
		cur = cur.AddDate(0, 1, 0)
	}
	return points
}

func initialStage(app *application.Application) string {
	if len(app.Logs) > 0 {
		return app.Logs[0].ToStage
	}
	return app.Stage
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
