package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{name: "empty", raw: "", expected: nil},
		{name: "only separators", raw: " , ,", expected: nil},
		{name: "single", raw: "http://localhost:3000", expected: []string{"http://localhost:3000"}},
		{name: "trims and dedupes", raw: " a, b,,a ,c", expected: []string{"a", "b", "c"}},
		{name: "case sensitive", raw: "GET,get", expected: []string{"GET", "get"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.raw, ","))
		})
	}
}
