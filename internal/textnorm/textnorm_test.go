package textnorm

import "testing"

func TestFold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"OUTAGE", "outage"},
		{"Straße", "strasse"},
		{"ｄｏｗｎ", "down"}, // fullwidth
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Primary DB down!", " primary db down "},
		{"  data-loss, in  prod ", " data loss in prod "},
		{"", "  "},
		{"!!!", "  "},
	}
	for _, tt := range tests {
		if got := Words(tt.in); got != tt.want {
			t.Errorf("Words(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainsPhrase(t *testing.T) {
	t.Parallel()

	w := Words("Checkout suffered DATA LOSS after the download failed")

	tests := []struct {
		phrase string
		want   bool
	}{
		{"data loss", true},
		{"Data-Loss", true},
		{"down", false},
		{"failed", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := ContainsPhrase(w, tt.phrase); got != tt.want {
			t.Errorf("ContainsPhrase(%q) = %v, want %v", tt.phrase, got, tt.want)
		}
	}
}
