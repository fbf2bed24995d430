package videoid

import "regexp"

// idLength is the fixed length of a YouTube video identifier.
const idLength = 11

var urlRe = regexp.MustCompile(`(?:youtu\.be/|/v/|/u/\w/|/embed/|/shorts/|/live/|watch\?v=|&v=)([^#&?/\s]+)`)

var idRe = regexp.MustCompile(`^[\w-]{11}$`)

// Extract parses a video id out of a raw URL. It recognizes watch, short,
// embed, shorts and live link shapes and succeeds only if the trailing
// identifier segment is exactly 11 characters long. Callers must treat a
// false result as the sole validation gate before any write.
func Extract(rawURL string) (string, bool) {
	match := urlRe.FindStringSubmatch(rawURL)
	if match == nil {
		return "", false
	}

	id := match[1]
	if len(id) != idLength || !idRe.MatchString(id) {
		return "", false
	}

	return id, true
}
