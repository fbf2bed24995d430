package playback

// Status is the observed state of the local media player embed.
type Status int

const (
	StatusUnstarted Status = iota
	StatusPlaying
	StatusPaused
	StatusBuffering
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusBuffering:
		return "buffering"
	case StatusEnded:
		return "ended"
	default:
		return "unstarted"
	}
}

// Player abstracts the local media player embed the engine reconciles
// against. Commands are fire-and-forget; the embed reports resulting
// transitions back through Engine.HandleLocalEvent.
type Player interface {
	// Position returns the current playback position in seconds.
	Position() float64
	Status() Status
	SeekTo(seconds float64)
	Play()
	Pause()
	// Load switches the embed to another video starting at the given
	// position.
	Load(videoId string, at float64)
}

// Event is a local player state transition, delivered by the embed binding.
type Event int

const (
	EventPlaying Event = iota
	EventPaused
	EventEnded
)
