package room

// PlayerState is the shared intended playback state of a room: a single
// last-write-wins document. Timestamp is the intended position at the moment
// UpdatedAt was recorded, not a live-updated counter.
type PlayerState struct {
	VideoId   string  `json:"video_id"`
	IsPlaying bool    `json:"is_playing"`
	Timestamp float64 `json:"timestamp"`
	UpdatedAt int64   `json:"updated_at"`
	Title     string  `json:"title,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	AddedBy   string  `json:"added_by,omitempty"`
}

// ExpectedPosition returns the intended playback position in seconds at
// authoritative time nowMillis. Readers must never trust a local position
// without this correction.
func (p PlayerState) ExpectedPosition(nowMillis int64) float64 {
	if !p.IsPlaying {
		return p.Timestamp
	}

	elapsed := nowMillis - p.UpdatedAt
	if elapsed < 0 {
		elapsed = 0
	}

	return p.Timestamp + float64(elapsed)/1000
}

// QueueItem is a pending playlist entry. Id is the store-assigned monotonic
// collection key; it never changes, reordering swaps payloads instead.
type QueueItem struct {
	Id        string `json:"-"`
	VideoId   string `json:"video_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
	AddedBy   string `json:"added_by"`
	AddedAt   int64  `json:"added_at"`
}

// HistoryItem records a previously played item. Write-once.
type HistoryItem struct {
	VideoId  string `json:"video_id"`
	Title    string `json:"title"`
	AddedBy  string `json:"added_by"`
	PlayedAt int64  `json:"played_at"`
}

type Message struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Participant is keyed by a client-generated persisted identifier. Online is
// flipped to false by the store's on-disconnect guarantee, not by the client.
type Participant struct {
	Name       string `json:"name"`
	Online     bool   `json:"online"`
	LastActive int64  `json:"last_active"`
}

type Settings struct {
	BackgroundURL   string  `json:"background_url,omitempty"`
	BackgroundBlur  int     `json:"background_blur"`
	OverlayStrength float64 `json:"overlay_strength"`
}
