package caption

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	got := Format(Meta{
		Filename: "notes.txt",
		UniqueID: 1700000000123,
		User:     "Alice",
	})

	want := "📁 notes.txt\n🆔 ID: 1700000000123\n🔗 Uploaded via TeleDrive\n👤 User: Alice"
	assert.Equal(t, want, got)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Parsed
	}{
		{
			name: "full caption",
			text: "📁 a.pdf\n🆔 ID: 123\n🔗 Uploaded via TeleDrive\n👤 User: Alice",
			want: Parsed{Filename: "a.pdf", HasFilename: true, UniqueID: 123, HasUniqueID: true},
		},
		{
			name: "filename only",
			text: "📁 b.jpg",
			want: Parsed{Filename: "b.jpg", HasFilename: true},
		},
		{
			name: "empty filename after sentinel",
			text: "📁 ",
			want: Parsed{},
		},
		{
			name: "no structure",
			text: "just a plain caption",
			want: Parsed{},
		},
		{
			name: "empty caption",
			text: "",
			want: Parsed{},
		},
		{
			name: "id line without filename",
			text: "some text\n🆔 ID: 42",
			want: Parsed{UniqueID: 42, HasUniqueID: true},
		},
		{
			name: "malformed id is ignored",
			text: "📁 c.txt\n🆔 ID: abc",
			want: Parsed{Filename: "c.txt", HasFilename: true},
		},
		{
			name: "negative id is ignored",
			text: "📁 c.txt\n🆔 ID: -5",
			want: Parsed{Filename: "c.txt", HasFilename: true},
		},
		{
			name: "filename sentinel not on first line",
			text: "hello\n📁 d.txt",
			want: Parsed{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.text))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	text := Format(Meta{Filename: "report 2024.docx", UniqueID: 999, User: "Bob"})
	p := Parse(text)

	assert.True(t, p.HasFilename)
	assert.Equal(t, "report 2024.docx", p.Filename)
	assert.True(t, p.HasUniqueID)
	assert.Equal(t, int64(999), p.UniqueID)
}

func TestWithID(t *testing.T) {
	tests := []struct {
		name string
		text string
		id   int64
		want string
	}{
		{
			name: "prepend after filename line",
			text: "📁 a.pdf\n🔗 Uploaded via TeleDrive",
			id:   7,
			want: "📁 a.pdf\n🆔 ID: 7\n🔗 Uploaded via TeleDrive",
		},
		{
			name: "no filename line",
			text: "plain caption",
			id:   7,
			want: "🆔 ID: 7\nplain caption",
		},
		{
			name: "empty caption",
			text: "",
			id:   7,
			want: "🆔 ID: 7",
		},
		{
			name: "existing id untouched",
			text: "📁 a.pdf\n🆔 ID: 123",
			id:   7,
			want: "📁 a.pdf\n🆔 ID: 123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithID(tt.text, tt.id))
		})
	}
}
