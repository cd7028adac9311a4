// Package priority keeps the three content-mix sliders of a visual abstract
// summing to 100 after any single edit.
package priority

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

type Key string

const (
	Textual    Key = "textual"
	Graphical  Key = "graphical"
	Symbolical Key = "symbolical"
)

// Total is the value every normalized split sums to.
const Total = 100

var (
	ErrZeroTotal  = errors.New("priorities sum to zero")
	ErrUnknownKey = errors.New("unknown priority key")
)

var Keys = []Key{Textual, Graphical, Symbolical}

type Split struct {
	Textual    int `json:"textual" yaml:"textual"`
	Graphical  int `json:"graphical" yaml:"graphical"`
	Symbolical int `json:"symbolical" yaml:"symbolical"`
}

func Default() Split {
	return Split{Textual: 33, Graphical: 33, Symbolical: 34}
}

func ParseKey(s string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case Textual, Graphical, Symbolical:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, s)
	}
}

func (s Split) Get(k Key) int {
	switch k {
	case Textual:
		return s.Textual
	case Graphical:
		return s.Graphical
	case Symbolical:
		return s.Symbolical
	}
	return 0
}

// With returns a copy of s with k set to v. Unknown keys leave s unchanged.
func (s Split) With(k Key, v int) Split {
	switch k {
	case Textual:
		s.Textual = v
	case Graphical:
		s.Graphical = v
	case Symbolical:
		s.Symbolical = v
	}
	return s
}

func (s Split) Sum() int { return s.Textual + s.Graphical + s.Symbolical }

// Validate reports whether s is a split the normalizer could have produced.
func (s Split) Validate() error {
	for _, k := range Keys {
		if v := s.Get(k); v < 0 || v > Total {
			return fmt.Errorf("%s priority %d out of range [0,%d]", k, v, Total)
		}
	}
	if sum := s.Sum(); sum != Total {
		return fmt.Errorf("priorities sum to %d, want %d", sum, Total)
	}
	return nil
}

func (s Split) String() string {
	return fmt.Sprintf("textual=%d graphical=%d symbolical=%d", s.Textual, s.Graphical, s.Symbolical)
}

// Normalize applies an edit of key to value and rescales the split so it
// sums to Total. Rounding drift lands on the edited key; if that would push
// it outside [0,Total] the overflow moves to the other keys, largest first.
func Normalize(current Split, key Key, value int) (Split, error) {
	if _, err := ParseKey(string(key)); err != nil {
		return current, err
	}
	next := Split{
		Textual:    clamp(current.Textual),
		Graphical:  clamp(current.Graphical),
		Symbolical: clamp(current.Symbolical),
	}.With(key, clamp(value))

	sum := next.Sum()
	if sum == 0 {
		return current, ErrZeroTotal
	}
	if sum == Total {
		return next, nil
	}

	scale := float64(Total) / float64(sum)
	scaled := Split{}
	for _, k := range Keys {
		scaled = scaled.With(k, roundHalfUp(float64(next.Get(k))*scale))
	}

	residual := Total - scaled.Sum()
	if residual == 0 {
		return scaled, nil
	}
	edited := scaled.Get(key) + residual
	scaled = scaled.With(key, clamp(edited))
	residual = edited - clamp(edited)
	return spread(scaled, key, residual), nil
}

// spread hands the leftover residual to the keys other than skip.
func spread(s Split, skip Key, residual int) Split {
	others := make([]Key, 0, len(Keys)-1)
	for _, k := range Keys {
		if k != skip {
			others = append(others, k)
		}
	}
	sort.SliceStable(others, func(i, j int) bool { return s.Get(others[i]) > s.Get(others[j]) })
	for _, k := range others {
		if residual == 0 {
			break
		}
		v := s.Get(k)
		moved := clamp(v+residual) - v
		s = s.With(k, v+moved)
		residual -= moved
	}
	return s
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > Total {
		return Total
	}
	return v
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Sliders holds one caller's split between edits. The zero value starts at
// Default.
type Sliders struct {
	mu    sync.Mutex
	split *Split
}

func NewSliders(initial Split) *Sliders {
	return &Sliders{split: &initial}
}

func (s *Sliders) Current() Split {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.split == nil {
		return Default()
	}
	return *s.split
}

// Set applies one edit. On error the previous split is kept.
func (s *Sliders) Set(key Key, value int) (Split, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := Default()
	if s.split != nil {
		cur = *s.split
	}
	next, err := Normalize(cur, key, value)
	if err != nil {
		return cur, err
	}
	s.split = &next
	return next, nil
}
