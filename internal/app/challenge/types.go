package challenge

// CompletionResult is what a user sees after completing a challenge.
type CompletionResult struct {
	ChallengeID int64  `json:"challenge_id"`
	UserID      string `json:"user_id"`
	Reward      int64  `json:"reward"`
	Balance     int64  `json:"balance"`
	Count       int64  `json:"count"`
}
