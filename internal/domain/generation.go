package domain

// GenerationRequest is what the engine hands to the content generator
// adapter for one platform of one automation run.
type GenerationRequest struct {
	Topic          string           `json:"topic"`
	Tone           string           `json:"tone"`
	ContentType    string           `json:"content_type"`
	TargetAudience string           `json:"target_audience,omitempty"`
	IncludeCTA     bool             `json:"include_cta,omitempty"`
	Platform       Platform         `json:"platform"`
	AI             *AISettings      `json:"ai_settings,omitempty"`
	Hashtags       *HashtagSettings `json:"hashtag_settings,omitempty"`
}

type GeneratedContent struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
}
