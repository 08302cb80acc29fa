package resolve

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

var (
	// ErrUnknownReference is returned for "#id" references to missing objects.
	ErrUnknownReference = errors.New("unknown timeline reference")
	// ErrCircularReference is returned when objects reference each other in a loop.
	ErrCircularReference = errors.New("circular timeline reference")
	// ErrBadExpression is returned for expressions that cannot be parsed.
	ErrBadExpression = errors.New("bad timeline expression")
)

// Interval is the absolute time span of a resolved object. End is nil for
// objects that never end.
type Interval struct {
	Start int64
	End   *int64
}

// Contains reports whether t falls inside the interval.
func (i Interval) Contains(t int64) bool {
	return t >= i.Start && (i.End == nil || t < *i.End)
}

type resolver struct {
	objects  map[string]*models.TimelineObject
	now      int64
	done     map[string]Interval
	visiting map[string]bool
	// starts memoises start times, which never depend on any end
	starts        map[string]int64
	visitingStart map[string]bool
}

// ResolveTimeline turns the enable expressions of objs into absolute
// intervals. Plain numbers are relative to the start of the enclosing group,
// "now" is the given time and "#id.start" / "#id.end" reference the absolute
// times of other objects. Children are clamped to their group.
func ResolveTimeline(objs []models.TimelineObject, now int64) (map[string]Interval, error) {
	r := &resolver{
		objects:       make(map[string]*models.TimelineObject, len(objs)),
		now:           now,
		done:          make(map[string]Interval, len(objs)),
		visiting:      make(map[string]bool),
		starts:        make(map[string]int64, len(objs)),
		visitingStart: make(map[string]bool),
	}
	for i := range objs {
		r.objects[objs[i].ID] = &objs[i]
	}
	for i := range objs {
		if _, err := r.resolve(objs[i].ID); err != nil {
			return nil, err
		}
	}
	return r.done, nil
}

func (r *resolver) object(id string) (*models.TimelineObject, error) {
	obj, ok := r.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReference, id)
	}
	return obj, nil
}

// start resolves the absolute start of an object from its group start and
// its start expression only.
func (r *resolver) start(id string) (int64, error) {
	if start, ok := r.starts[id]; ok {
		return start, nil
	}
	obj, err := r.object(id)
	if err != nil {
		return 0, err
	}
	if r.visitingStart[id] {
		return 0, fmt.Errorf("%w: %q", ErrCircularReference, id)
	}
	r.visitingStart[id] = true
	defer delete(r.visitingStart, id)

	var parentStart int64
	if obj.InGroup != "" {
		if parentStart, err = r.start(obj.InGroup); err != nil {
			return 0, err
		}
	}
	start := parentStart
	if obj.Enable.While == "" {
		if start, err = r.eval(obj.Enable.Start, parentStart); err != nil {
			return 0, fmt.Errorf("object %q start: %w", id, err)
		}
	}
	r.starts[id] = start
	return start, nil
}

func (r *resolver) resolve(id string) (Interval, error) {
	if iv, ok := r.done[id]; ok {
		return iv, nil
	}
	obj, err := r.object(id)
	if err != nil {
		return Interval{}, err
	}
	if r.visiting[id] {
		return Interval{}, fmt.Errorf("%w: %q", ErrCircularReference, id)
	}
	r.visiting[id] = true
	defer delete(r.visiting, id)

	parent := Interval{}
	if obj.InGroup != "" {
		if parent, err = r.resolve(obj.InGroup); err != nil {
			return Interval{}, err
		}
	}

	var iv Interval
	switch {
	case obj.Enable.While != "":
		iv = parent
	default:
		if iv.Start, err = r.start(id); err != nil {
			return Interval{}, err
		}
		switch {
		case obj.Enable.End != "":
			end, err := r.eval(obj.Enable.End, parent.Start)
			if err != nil {
				return Interval{}, fmt.Errorf("object %q end: %w", id, err)
			}
			iv.End = &end
		case obj.Enable.Duration != "":
			dur, err := r.eval(obj.Enable.Duration, 0)
			if err != nil {
				return Interval{}, fmt.Errorf("object %q duration: %w", id, err)
			}
			end := iv.Start + dur
			iv.End = &end
		case obj.InGroup != "":
			iv.End = parent.End
		}
	}

	if obj.InGroup != "" && parent.End != nil && (iv.End == nil || *iv.End > *parent.End) {
		end := *parent.End
		iv.End = &end
	}
	r.done[id] = iv
	return iv, nil
}

// eval computes an expression. A result built only from numbers is offset by
// base; any reference or "now" makes it absolute.
func (r *resolver) eval(e models.Expr, base int64) (int64, error) {
	src := strings.TrimSpace(string(e))
	if src == "" {
		return base, nil
	}
	terms, err := tokenize(src)
	if err != nil {
		return 0, err
	}
	var total int64
	absolute := false
	for _, t := range terms {
		v, abs, err := r.term(t.value)
		if err != nil {
			return 0, err
		}
		absolute = absolute || abs
		if t.negative {
			total -= v
		} else {
			total += v
		}
	}
	if absolute {
		return total, nil
	}
	return base + total, nil
}

func (r *resolver) term(s string) (int64, bool, error) {
	switch {
	case s == "now":
		return r.now, true, nil
	case strings.HasPrefix(s, "#"):
		ref, prop, ok := strings.Cut(s[1:], ".")
		if !ok {
			prop = "start"
		}
		switch prop {
		case "start":
			start, err := r.start(ref)
			if err != nil {
				return 0, false, err
			}
			return start, true, nil
		case "end":
			iv, err := r.resolve(ref)
			if err != nil {
				return 0, false, err
			}
			if iv.End == nil {
				return 0, false, fmt.Errorf("%w: %q has no end", ErrBadExpression, ref)
			}
			return *iv.End, true, nil
		default:
			return 0, false, fmt.Errorf("%w: unknown property %q", ErrBadExpression, prop)
		}
	default:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q", ErrBadExpression, s)
		}
		return v, false, nil
	}
}

type token struct {
	value    string
	negative bool
}

// tokenize splits "a + b - c" into signed terms. Operators must be separated
// by whitespace so that ids may contain dashes.
func tokenize(src string) ([]token, error) {
	fields := strings.Fields(src)
	if len(fields)%2 == 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadExpression, src)
	}
	out := []token{{value: fields[0]}}
	for i := 1; i < len(fields); i += 2 {
		switch fields[i] {
		case "+":
			out = append(out, token{value: fields[i+1]})
		case "-":
			out = append(out, token{value: fields[i+1], negative: true})
		default:
			return nil, fmt.Errorf("%w: %q", ErrBadExpression, src)
		}
	}
	return out, nil
}
