package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one parsed cron column; a nil set matches every value.
type field struct {
	set map[int]bool
}

func (f field) match(v int) bool { return f.set == nil || f.set[v] }

// Schedule is a parsed 5-field cron expression evaluated in UTC:
// minute hour day-of-month month day-of-week. Each field accepts "*",
// a number, a range "a-b", a step "*/n" or "a-b/n", and comma lists.
type Schedule struct {
	expr                          string
	minute, hour, dom, month, dow field
}

var bounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

// ParseSchedule parses expr.
func ParseSchedule(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("pipeline: cron %q: want 5 fields, got %d", expr, len(parts))
	}
	var fs [5]field
	for i, p := range parts {
		f, err := parseField(p, bounds[i][0], bounds[i][1])
		if err != nil {
			return Schedule{}, fmt.Errorf("pipeline: cron %q field %d: %w", expr, i+1, err)
		}
		fs[i] = f
	}
	return Schedule{expr: expr, minute: fs[0], hour: fs[1], dom: fs[2], month: fs[3], dow: fs[4]}, nil
}

func parseField(s string, lo, hi int) (field, error) {
	if s == "*" {
		return field{}, nil
	}
	set := make(map[int]bool)
	for _, term := range strings.Split(s, ",") {
		step := 1
		if base, st, ok := strings.Cut(term, "/"); ok {
			n, err := strconv.Atoi(st)
			if err != nil || n <= 0 {
				return field{}, fmt.Errorf("bad step %q", st)
			}
			term, step = base, n
		}
		from, to := lo, hi
		switch {
		case term == "*":
		case strings.Contains(term, "-"):
			a, b, _ := strings.Cut(term, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return field{}, fmt.Errorf("bad range %q", term)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return field{}, fmt.Errorf("bad range %q", term)
			}
		default:
			n, err := strconv.Atoi(term)
			if err != nil {
				return field{}, fmt.Errorf("bad value %q", term)
			}
			from, to = n, n
		}
		if from < lo || to > hi || from > to {
			return field{}, fmt.Errorf("%q out of range %d-%d", term, lo, hi)
		}
		for v := from; v <= to; v += step {
			set[v] = true
		}
	}
	return field{set: set}, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.minute.match(t.Minute()) &&
		s.hour.match(t.Hour()) &&
		s.dom.match(t.Day()) &&
		s.month.match(int(t.Month())) &&
		s.dow.match(int(t.Weekday()))
}

// Next returns the first matching minute strictly after t, looking at
// most a year ahead.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	c := t.UTC().Truncate(time.Minute).Add(time.Minute)
	for limit := c.AddDate(1, 0, 1); c.Before(limit); c = c.Add(time.Minute) {
		if s.matches(c) {
			return c, nil
		}
	}
	return time.Time{}, fmt.Errorf("pipeline: cron %q never fires", s.expr)
}

// String returns the original expression.
func (s Schedule) String() string { return s.expr }
