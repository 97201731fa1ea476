package domain

import (
	"errors"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"", ModeAll},
		{"all", ModeAll},
		{"on_change", ModeOnChange},
		{"merge", ModeMerge},
	}

	for _, tt := range tests {
		t.Run("input="+tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if err != nil {
				t.Fatalf("ParseMode(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMode_Illegal(t *testing.T) {
	for _, input := range []string{"bogus", "ALL", "on-change", "onChange"} {
		if _, err := ParseMode(input); !errors.Is(err, ErrIllegalMode) {
			t.Errorf("ParseMode(%q) error = %v, want ErrIllegalMode", input, err)
		}
	}
}

func TestMode_String(t *testing.T) {
	if got := ModeOnChange.String(); got != "on_change" {
		t.Errorf("ModeOnChange.String() = %q, want %q", got, "on_change")
	}
	if got := Mode(99).String(); got != "mode(99)" {
		t.Errorf("Mode(99).String() = %q, want %q", got, "mode(99)")
	}
}
