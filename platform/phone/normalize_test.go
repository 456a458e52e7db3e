package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		region string
		want   string
	}{
		{name: "empty", input: "  ", region: "US", want: ""},
		{name: "national us", input: "(650) 253-0000", region: "US", want: "+16502530000"},
		{name: "international wins over region", input: "+31 20 794 8800", region: "US", want: "+31207948800"},
		{name: "garbage kept", input: "call me", region: "US", want: "call me"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeE164(tt.input, tt.region); got != tt.want {
				t.Fatalf("NormalizeE164(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
