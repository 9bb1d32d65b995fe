// Package schedule wraps a cron expression evaluator behind a narrow
// next-instant-after contract, built on github.com/robfig/cron/v3.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule evaluates a parsed cron expression.
type Schedule struct {
	sched cron.Schedule
}

// parser accepts the standard five fields (minute hour dom month dow) with
// an optional leading seconds field, since restart schedules are sometimes
// expressed down to the second (e.g. "*/5 * * * * *").
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Parse parses a cron expression.
func Parse(expr string) (*Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron schedule %q: %w", expr, err)
	}
	return &Schedule{sched: sched}, nil
}

// NextAfter returns the first instant strictly after `after` at which the
// schedule fires. It returns the zero time when robfig/cron's Schedule.Next
// finds no firing within five years (e.g. "0 0 30 2 *").
func (s *Schedule) NextAfter(after time.Time) time.Time {
	return s.sched.Next(after)
}
