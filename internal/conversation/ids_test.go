// ABOUTME: Tests for message identifier assignment and resolution
// ABOUTME: Covers provisional ids, strict integer parsing and the user+1 fallback

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignProvisionalUserMessageID(t *testing.T) {
	for _, p := range []int64{0, 1, 7, 41, 1 << 40} {
		assert.Equal(t, p+1, AssignProvisionalUserMessageID(p))
	}
}

func TestParseMessageID(t *testing.T) {
	tests := []struct {
		raw    string
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{"0", 0, true},
		{"007", 7, true},
		{"", 0, false},
		{"-3", 0, false},
		{"+3", 0, false},
		{"4.0", 0, false},
		{"1e3", 0, false},
		{" 5", 0, false},
		{"abc", 0, false},
		{"msg_12", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseMessageID(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveFinalAssistantMessageID(t *testing.T) {
	assert.Equal(t, int64(42), ResolveFinalAssistantMessageID("42", 3))
	assert.Equal(t, int64(0), ResolveFinalAssistantMessageID("0", 3))
	assert.Equal(t, int64(4), ResolveFinalAssistantMessageID("", 3))
	assert.Equal(t, int64(4), ResolveFinalAssistantMessageID("abc", 3))
	assert.Equal(t, int64(4), ResolveFinalAssistantMessageID("-1", 3))
	assert.Equal(t, int64(4), ResolveFinalAssistantMessageID("2.5", 3))
}
