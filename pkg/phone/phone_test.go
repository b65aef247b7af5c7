package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"local form unchanged", "0712345678", "0712345678"},
		{"international form", "254712345678", "0712345678"},
		{"plus prefixed", "+254712345678", "0712345678"},
		{"bare subscriber number", "712345678", "0712345678"},
		{"with spaces", "  0712 345 678 ", "0712345678"},
		{"with dashes", "0712-345-678", "0712345678"},
		{"landline style 01", "254112345678", "0112345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.input))
		})
	}
}

// every accepted input form must map to the same canonical value, else the
// callback user lookup misses silently
func TestFormatRoundTrip(t *testing.T) {
	forms := []string{"0712345678", "+254712345678", "254712345678", "712345678"}
	for _, f := range forms {
		assert.Equal(t, "0712345678", Format(f), "input %q", f)
	}
}

func TestTo254(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"0712345678", "254712345678", false},
		{"+254712345678", "254712345678", false},
		{"254712345678", "254712345678", false},
		{"07123", "", true},
		{"not-a-number", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := To254(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		assert.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}
