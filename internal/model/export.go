package model

import "time"

// ResultsExport is the top-level JSON structure for attempt result export.
type ResultsExport struct {
	GeneratedAt         time.Time       `json:"generated_at"`
	From                string          `json:"from,omitempty"`
	To                  string          `json:"to,omitempty"`
	Status              AttemptStatus   `json:"status,omitempty"`
	MaxScorePerQuestion float64         `json:"max_score_per_question"`
	Results             []TraineeResult `json:"results"`
}

// TraineeResult holds one trainee's attempt for export.
type TraineeResult struct {
	AttemptID            string         `json:"attempt_id"`
	TraineeID            string         `json:"trainee_id"`
	TraineeName          string         `json:"trainee_name"`
	TraineeEmail         string         `json:"trainee_email"`
	Date                 string         `json:"date"`
	SessionTitle         string         `json:"session_title"`
	Status               AttemptStatus  `json:"status"`
	SubmittedAt          *time.Time     `json:"submitted_at,omitempty"`
	OverallUnderstanding string         `json:"overall_understanding,omitempty"`
	Answers              []AnswerRecord `json:"answers"`
	Evaluation           *Evaluation    `json:"evaluation,omitempty"`
}
