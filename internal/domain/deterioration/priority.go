package deterioration

import (
	"fmt"
	"strings"
)

// Priority is a triage priority level name such as "RED".
type Priority string

const (
	Blue   Priority = "BLUE"
	Green  Priority = "GREEN"
	Yellow Priority = "YELLOW"
	Red    Priority = "RED"
)

// Scale is an ordered set of priority levels, least urgent first.
type Scale struct {
	levels []Priority
	rank   map[Priority]int
	def    Priority
}

// DefaultScale is GREEN < YELLOW < RED.
var DefaultScale = MustScale(Green, Yellow, Red)

// NewScale builds a scale from levels ordered least urgent first. The default
// level for unknown input is GREEN when present, otherwise the lowest level.
func NewScale(levels ...Priority) (Scale, error) {
	if len(levels) == 0 {
		return Scale{}, fmt.Errorf("priority scale must have at least one level")
	}
	s := Scale{rank: make(map[Priority]int, len(levels))}
	for i, raw := range levels {
		p := Priority(strings.ToUpper(strings.TrimSpace(string(raw))))
		if p == "" {
			return Scale{}, fmt.Errorf("priority scale level %d is empty", i)
		}
		if _, dup := s.rank[p]; dup {
			return Scale{}, fmt.Errorf("priority scale level %q repeated", p)
		}
		s.rank[p] = i
		s.levels = append(s.levels, p)
	}
	s.def = s.levels[0]
	if _, ok := s.rank[Green]; ok {
		s.def = Green
	}
	return s, nil
}

func MustScale(levels ...Priority) Scale {
	s, err := NewScale(levels...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseScale parses a comma separated list such as "BLUE,GREEN,YELLOW,RED".
func ParseScale(s string) (Scale, error) {
	var levels []Priority
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			levels = append(levels, Priority(p))
		}
	}
	return NewScale(levels...)
}

func (s Scale) Levels() []Priority {
	out := make([]Priority, len(s.levels))
	copy(out, s.levels)
	return out
}

func (s Scale) Default() Priority { return s.def }

func (s Scale) Contains(p Priority) bool {
	_, ok := s.rank[p]
	return ok
}

// Rank returns the position of p on the scale, or -1 when unknown.
func (s Scale) Rank(p Priority) int {
	r, ok := s.rank[p]
	if !ok {
		return -1
	}
	return r
}

// Normalize maps raw input onto the scale. Unknown or empty values become
// the scale default.
func (s Scale) Normalize(raw string) Priority {
	p := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	if s.Contains(p) {
		return p
	}
	return s.def
}

// Less reports whether a is strictly less urgent than b.
func (s Scale) Less(a, b Priority) bool {
	return s.Rank(a) < s.Rank(b)
}

func (s Scale) String() string {
	parts := make([]string, len(s.levels))
	for i, p := range s.levels {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}
