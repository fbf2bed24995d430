package videoid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		url  string
		id   string
		ok   bool
	}{
		{"watch link", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"embed link", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"shorts link", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"watch link with extra params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"v param in the middle", "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"plain text", "not a url", "", false},
		{"empty string", "", "", false},
		{"id too short", "https://youtu.be/short", "", false},
		{"id too long", "https://youtu.be/waaaaaaaaaytoolong", "", false},
		{"homepage", "https://www.youtube.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := Extract(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	id, ok := Extract("https://youtu.be/dQw4w9WgXcQ")
	require.True(t, ok)

	// extracting from the canonical watch url built from a previous result
	// must return the same id
	again, ok := Extract("https://www.youtube.com/watch?v=" + id)
	require.True(t, ok)
	assert.Equal(t, id, again)
}
