package webhook

// Input is the creation payload for webhooks.
type Input struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Secret      string   `json:"secret"`
	Description string   `json:"description,omitempty"`
}
