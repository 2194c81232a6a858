package source

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "redacts urls",
			body: "Manage your booking at https://simplybook.me/manage?id=42 today",
			want: "Manage your booking at <REDACTED URL> today",
		},
		{
			name: "redacts multiple urls",
			body: "See http://a.example and http://b.example",
			want: "See <REDACTED URL> and <REDACTED URL>",
		},
		{
			name: "trims whitespace",
			body: "  hello  \n",
			want: "hello",
		},
		{
			name: "plain text untouched",
			body: "Appointment for 3D Printer on 2024-05-01 at 10:00 has been cancelled",
			want: "Appointment for 3D Printer on 2024-05-01 at 10:00 has been cancelled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeBody(tt.body))
		})
	}
}

func TestSanitizeBodyTruncates(t *testing.T) {
	long := strings.Repeat("a", MaxBodyLength+500)
	got := SanitizeBody(long)
	assert.Len(t, got, MaxBodyLength)
}

func TestSanitizeBodyTruncatesOnRuneBoundary(t *testing.T) {
	// A two-byte rune straddling the cap must be dropped whole, not
	// split into invalid bytes.
	long := strings.Repeat("a", MaxBodyLength-1) + "é"
	got := SanitizeBody(long)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", MaxBodyLength-1), got)

	multi := strings.Repeat("é", MaxBodyLength)
	got = SanitizeBody(multi)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), MaxBodyLength)
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<html><body><p>Hello <b>there</b></p></body></html>")
	assert.Equal(t, "Hello there", got)
}
