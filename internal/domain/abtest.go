package domain

import "time"

// ABTestStatus is the lifecycle state of an A/B test.
type ABTestStatus string

const (
	ABTestDraft     ABTestStatus = "DRAFT"
	ABTestRunning   ABTestStatus = "RUNNING"
	ABTestCompleted ABTestStatus = "COMPLETED"
)

// ABTestEvent is a recordable per-variant delivery event.
type ABTestEvent string

const (
	ABEventSent      ABTestEvent = "sent"
	ABEventOpened    ABTestEvent = "opened"
	ABEventClicked   ABTestEvent = "clicked"
	ABEventBounced   ABTestEvent = "bounced"
	ABEventConverted ABTestEvent = "converted"
)

// ABTest is a split test attached to a campaign: a sample of the recipient
// set split across variants, with the remainder held back for the winner.
type ABTest struct {
	ID              string          `json:"id"`
	CampaignID      string          `json:"campaign_id"`
	Status          ABTestStatus    `json:"status"`
	SamplePercent   int             `json:"sample_percent"`
	WinnerVariantID *string         `json:"winner_variant_id,omitempty"`
	Variants        []ABTestVariant `json:"variants,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ABTestVariant is one content alternative with aggregated counters.
type ABTestVariant struct {
	ID        string `json:"id"`
	TestID    string `json:"test_id"`
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
	Sent      int    `json:"sent"`
	Opened    int    `json:"opened"`
	Clicked   int    `json:"clicked"`
	Bounced   int    `json:"bounced"`
	Converted int    `json:"converted"`
}
