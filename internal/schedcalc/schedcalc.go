// Package schedcalc computes due instants from ISO 8601 schedule strings
// and rewrites them after each run, per the three recognized shapes:
//
//	INSTANT                a single timestamp, one-shot
//	R[n]/DURATION           repeat n times (or forever), starting now
//	R[n]/START/DURATION     repeat n times (or forever), starting at START
package schedcalc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(
	`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
)

const (
	daysPerYear  = 365
	daysPerMonth = 30
)

// ParseDuration parses an ISO 8601 duration (e.g. "P1D", "PT1M", "PT90S").
// Calendar components (Y, M, W, D) are converted using fixed approximations
// (365/30/7/1 days); there is no pack dependency for calendar-aware ISO 8601
// duration arithmetic, so this stays a direct, approximate conversion.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("schedcalc: invalid ISO 8601 duration %q", s)
	}
	if s == "P" || s == "PT" {
		return 0, fmt.Errorf("schedcalc: empty ISO 8601 duration %q", s)
	}

	var total time.Duration
	add := func(group string, unit time.Duration) error {
		if group == "" {
			return nil
		}
		n, err := strconv.ParseFloat(group, 64)
		if err != nil {
			return fmt.Errorf("schedcalc: invalid duration component %q: %w", group, err)
		}
		total += time.Duration(n * float64(unit))
		return nil
	}

	if err := add(m[1], 24*daysPerYear*time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[2], 24*daysPerMonth*time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[3], 7*24*time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[4], 24*time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[5], time.Hour); err != nil {
		return 0, err
	}
	if err := add(m[6], time.Minute); err != nil {
		return 0, err
	}
	if err := add(m[7], time.Second); err != nil {
		return 0, err
	}

	if total <= 0 {
		return 0, fmt.Errorf("schedcalc: duration %q is not positive", s)
	}
	return total, nil
}

// FormatDuration renders d as an ISO 8601 duration in seconds. Rewritten
// schedules always normalize to this form; the original calendar unit used
// by the caller (e.g. "P1D") is not preserved, only its elapsed duration.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("PT%dS", int64(d.Seconds()))
}

type kind int

const (
	kindInstant kind = iota
	kindRepeat
)

// parsed is the decoded form of a schedule string.
type parsed struct {
	kind    kind
	instant time.Time // kindInstant

	count  *int       // kindRepeat; nil = infinite
	start  *time.Time // kindRepeat; nil = "now" (shape 2)
	period time.Duration
}

func parse(schedule string) (*parsed, error) {
	if strings.HasPrefix(schedule, "R") {
		return parseRepeat(schedule)
	}
	t, err := time.Parse(time.RFC3339, schedule)
	if err != nil {
		return nil, fmt.Errorf("schedcalc: invalid schedule %q: %w", schedule, err)
	}
	return &parsed{kind: kindInstant, instant: t}, nil
}

func parseRepeat(schedule string) (*parsed, error) {
	parts := strings.Split(schedule, "/")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, fmt.Errorf("schedcalc: invalid repeat schedule %q", schedule)
	}

	var count *int
	if n := strings.TrimPrefix(parts[0], "R"); n != "" {
		v, err := strconv.Atoi(n)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("schedcalc: invalid repeat count in %q", schedule)
		}
		count = &v
	}

	var start *time.Time
	durationIdx := 1
	if len(parts) == 3 {
		t, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("schedcalc: invalid start instant in %q: %w", schedule, err)
		}
		start = &t
		durationIdx = 2
	}

	period, err := ParseDuration(parts[durationIdx])
	if err != nil {
		return nil, err
	}

	return &parsed{kind: kindRepeat, count: count, start: start, period: period}, nil
}

func buildRepeatSchedule(count *int, start time.Time, period time.Duration) string {
	prefix := "R"
	if count != nil {
		prefix = fmt.Sprintf("R%d", *count)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, start.UTC().Format(time.RFC3339), FormatDuration(period))
}

// Next computes the next due instant for schedule.
//
// On insert (update=false) it returns the start of the first interval: the
// instant itself for shape 1, now for shape 2, START for shape 3. The
// schedule string is returned unchanged.
//
// After a run (update=true) it returns the end of the current interval and
// the rewritten schedule string to persist. A nil due instant means "do not
// reschedule" — the caller removes the record.
//
// An empty schedule is treated as "run once, now".
func Next(schedule string, now time.Time, update bool) (due *time.Time, newSchedule string, err error) {
	if schedule == "" {
		if !update {
			return &now, schedule, nil
		}
		return nil, schedule, nil
	}

	p, err := parse(schedule)
	if err != nil {
		return nil, "", err
	}

	switch p.kind {
	case kindInstant:
		if !update {
			t := p.instant
			return &t, schedule, nil
		}
		return nil, schedule, nil

	case kindRepeat:
		if !update {
			if p.start != nil {
				t := *p.start
				return &t, schedule, nil
			}
			return &now, schedule, nil
		}

		// Drift rule: the current interval starts at now rather than at a
		// stored START, so a job dormant for many periods runs once and is
		// then due one period later instead of catching up all at once.
		end := now.Add(p.period)

		if p.count != nil && *p.count == 1 {
			// Last scheduled run just fired; rewrite to the now-past
			// instant it fired at and signal removal.
			fired := now
			if p.start != nil {
				fired = *p.start
			}
			return nil, fired.UTC().Format(time.RFC3339), nil
		}

		var remaining *int
		if p.count != nil {
			r := *p.count - 1
			remaining = &r
		}

		// The rewritten schedule's next interval starts where this one ends.
		return &end, buildRepeatSchedule(remaining, end, p.period), nil
	}

	return nil, "", fmt.Errorf("schedcalc: unreachable schedule kind for %q", schedule)
}
