package db

import (
	"time"

	"github.com/google/uuid"
)

// Submission outcomes. A dispatched submission was accepted by the node;
// whether it was mined is not tracked.
const (
	OutcomeDispatched = "dispatched"
	OutcomeFailed     = "failed"
)

// Submission is one journaled contract write.
type Submission struct {
	ID        string  `json:"id"`
	Action    string  `json:"action"`
	Token     string  `json:"token"`
	Account   string  `json:"account"`
	AmountWei *string `json:"amount_wei,omitempty"`
	TxHash    *string `json:"tx_hash,omitempty"`
	Outcome   string  `json:"outcome"`
	Error     *string `json:"error,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// InsertSubmission stores s, assigning an id and timestamp when missing.
func InsertSubmission(s *Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	_, err := db.Exec(`
		INSERT INTO submissions
			(id, action, token, account, amount_wei, tx_hash, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Action, s.Token, s.Account, s.AmountWei, s.TxHash,
		s.Outcome, s.Error, s.CreatedAt)
	return err
}

// GetRecentSubmissions returns the newest submissions first.
func GetRecentSubmissions(limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, action, token, account, amount_wei, tx_hash, outcome, error, created_at
		FROM submissions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.ID, &s.Action, &s.Token, &s.Account, &s.AmountWei,
			&s.TxHash, &s.Outcome, &s.Error, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSubmissions returns the total number of journaled submissions.
func CountSubmissions() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM submissions`).Scan(&n)
	return n, err
}

// CountSubmissionsByOutcome returns the number of submissions with outcome.
func CountSubmissionsByOutcome(outcome string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE outcome = ?`, outcome).Scan(&n)
	return n, err
}
