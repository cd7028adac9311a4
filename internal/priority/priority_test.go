package priority

import (
	"errors"
	"testing"
)

func TestNormalizeRescalesAfterEdit(t *testing.T) {
	got, err := Normalize(Default(), Textual, 60)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := Split{Textual: 47, Graphical: 26, Symbolical: 27}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNormalizeClampsInput(t *testing.T) {
	got, err := Normalize(Default(), Textual, 150)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != (Split{Textual: 60, Graphical: 20, Symbolical: 20}) {
		t.Fatalf("unexpected clamp-high result %v", got)
	}

	got, err = Normalize(Default(), Textual, -5)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != (Split{Textual: 0, Graphical: 49, Symbolical: 51}) {
		t.Fatalf("unexpected clamp-low result %v", got)
	}
}

func TestNormalizeZeroTotal(t *testing.T) {
	cur := Split{Textual: 0, Graphical: 0, Symbolical: 100}
	got, err := Normalize(cur, Symbolical, 0)
	if !errors.Is(err, ErrZeroTotal) {
		t.Fatalf("expected ErrZeroTotal, got %v", err)
	}
	if got != cur {
		t.Fatalf("split should be unchanged on error, got %v", got)
	}
}

func TestNormalizeUnknownKey(t *testing.T) {
	if _, err := Normalize(Default(), Key("colour"), 10); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestNormalizeResidualNeverLeavesRange(t *testing.T) {
	// 0 / 12.5 / 87.5 rounds to 101, so the edited key would go to -1.
	got, err := Normalize(Split{Textual: 0, Graphical: 1, Symbolical: 7}, Textual, 0)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != (Split{Textual: 0, Graphical: 13, Symbolical: 87}) {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestNormalizeAlwaysSumsToTotal(t *testing.T) {
	for a := 0; a <= 100; a += 7 {
		for b := 0; b <= 100; b += 9 {
			for c := 0; c <= 100; c += 11 {
				for _, k := range Keys {
					for _, v := range []int{0, 1, 13, 50, 99, 100} {
						got, err := Normalize(Split{Textual: a, Graphical: b, Symbolical: c}, k, v)
						if errors.Is(err, ErrZeroTotal) {
							continue
						}
						if err != nil {
							t.Fatalf("normalize(%d,%d,%d %s=%d): %v", a, b, c, k, v, err)
						}
						if err := got.Validate(); err != nil {
							t.Fatalf("normalize(%d,%d,%d %s=%d) = %v: %v", a, b, c, k, v, got, err)
						}
					}
				}
			}
		}
	}
}

func TestNormalizeIsIdempotentOnValidSplit(t *testing.T) {
	for _, s := range []Split{Default(), {100, 0, 0}, {10, 20, 70}, {47, 26, 27}} {
		for _, k := range Keys {
			got, err := Normalize(s, k, s.Get(k))
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if got != s {
				t.Fatalf("normalize(%v, %s) changed split to %v", s, k, got)
			}
		}
	}
}

func TestParseKey(t *testing.T) {
	for in, want := range map[string]Key{"textual": Textual, " Graphical ": Graphical, "SYMBOLICAL": Symbolical} {
		got, err := ParseKey(in)
		if err != nil || got != want {
			t.Fatalf("ParseKey(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKey("audio"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default should validate: %v", err)
	}
	if err := (Split{50, 50, 50}).Validate(); err == nil {
		t.Fatal("expected sum error")
	}
	if err := (Split{-10, 60, 50}).Validate(); err == nil {
		t.Fatal("expected range error")
	}
}

func TestSlidersKeepPreviousSplitOnError(t *testing.T) {
	var s Sliders
	if s.Current() != Default() {
		t.Fatalf("zero sliders should start at default, got %v", s.Current())
	}
	if _, err := s.Set(Textual, 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	if s.Current() != (Split{Textual: 47, Graphical: 26, Symbolical: 27}) {
		t.Fatalf("unexpected split %v", s.Current())
	}

	only := NewSliders(Split{Textual: 100})
	if _, err := only.Set(Textual, 0); !errors.Is(err, ErrZeroTotal) {
		t.Fatalf("expected ErrZeroTotal, got %v", err)
	}
	if only.Current() != (Split{Textual: 100}) {
		t.Fatalf("split should be unchanged after rejected edit, got %v", only.Current())
	}
}
