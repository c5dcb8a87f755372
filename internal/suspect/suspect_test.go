package suspect

import "testing"

func TestHit(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Saved Search", true},
		{"Please refine your search to see more results", true},
		{"Sign In", true},
		{"Sponsored · Oakwood Elementary", true},
		{"Next Page", true},
		{"Reading Tutor", false},
		{"Oakwood Elementary", false},
		{"Help young readers build confidence", false},
		{"", false},
	}

	for _, tt := range tests {
		if _, got := Hit(tt.text); got != tt.want {
			t.Errorf("Hit(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
