package push

// Payload is the notification content handed to every transport.
type Payload struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon"`
	Data    Data     `json:"data"`
	Actions []Action `json:"actions,omitempty"`
}

// Data lets the client route a tap back to the episode.
type Data struct {
	EpisodeID string `json:"episode_id"`
	URL       string `json:"url"`
}

// Action is a button offered with the notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Check-in action identifiers.
const (
	ActionStillActive = "still-active"
	ActionEnded       = "ended"
)

// CheckInPayload builds the fixed check-in notification for an episode.
func CheckInPayload(episodeID string) Payload {
	return Payload{
		Title: "Migraine Check-in",
		Body:  "Is your migraine still ongoing? Tap to update.",
		Icon:  "/favicon.ico",
		Data: Data{
			EpisodeID: episodeID,
			URL:       "/",
		},
		Actions: []Action{
			{Action: ActionStillActive, Title: "Still Active"},
			{Action: ActionEnded, Title: "It Ended"},
		},
	}
}
