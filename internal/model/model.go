package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role represents a user's access level.
type Role string

const (
	// RoleTrainee takes quizzes.
	RoleTrainee Role = "trainee"
	// RoleAdmin authors question sets and evaluates attempts.
	RoleAdmin Role = "admin"
	// RoleSuperadmin additionally manages accounts.
	RoleSuperadmin Role = "superadmin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTrainee, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"passwordHash"`
	Role         Role      `json:"role" bson:"role"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type identityCtxKey struct{}

// ContextWithIdentity stores the caller identity in the request context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// Question is one topic/question pair of a question set.
type Question struct {
	Topic         string   `json:"topic" bson:"topic"`
	Question      string   `json:"question" bson:"question"`
	Type          string   `json:"type,omitempty" bson:"type,omitempty"`
	Options       []string `json:"options,omitempty" bson:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty" bson:"correctAnswer,omitempty"`
	Explanation   string   `json:"explanation,omitempty" bson:"explanation,omitempty"`
}

// QuestionSet is a dated, titled list of questions contributed by one admin.
// Several sets may share a date.
type QuestionSet struct {
	ID           string     `json:"id" bson:"_id"`
	Date         string     `json:"date" bson:"date"`
	SessionTitle string     `json:"sessionTitle" bson:"sessionTitle"`
	Questions    []Question `json:"questions" bson:"questions"`
	CreatedBy    string     `json:"createdBy" bson:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Public returns a copy of the set without correct answers and explanations.
func (qs QuestionSet) Public() QuestionSet {
	out := qs
	out.Questions = make([]Question, len(qs.Questions))
	for i, q := range qs.Questions {
		q.CorrectAnswer = ""
		q.Explanation = ""
		out.Questions[i] = q
	}
	return out
}

// AttemptStatus represents the status of an attempt.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in-progress"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusEvaluated  AttemptStatus = "evaluated"
)

// AnswerText is a trainee answer. JSON strings and numbers are both accepted.
type AnswerText string

func (a *AnswerText) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AnswerText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("answer must be a string or a number")
	}
	*a = AnswerText(n.String())
	return nil
}

// AnswerRecord holds one answered question of an attempt.
type AnswerRecord struct {
	Topic         string     `json:"topic" bson:"topic"`
	Question      string     `json:"question" bson:"question"`
	Answer        AnswerText `json:"answer" bson:"answer"`
	Score         *float64   `json:"score,omitempty" bson:"score,omitempty"`
	Feedback      string     `json:"feedback,omitempty" bson:"feedback,omitempty"`
	Options       []string   `json:"options,omitempty" bson:"options,omitempty"`
	CorrectAnswer string     `json:"correctAnswer,omitempty" bson:"correctAnswer,omitempty"`
}

// Evaluation is the graded outcome embedded in an attempt.
type Evaluation struct {
	TotalScore      float64   `json:"totalScore" bson:"totalScore"`
	MaxScore        float64   `json:"maxScore" bson:"maxScore"`
	Percentage      int       `json:"percentage" bson:"percentage"`
	Grade           string    `json:"grade" bson:"grade"`
	EvaluatedBy     string    `json:"evaluatedBy" bson:"evaluatedBy"`
	EvaluatorEmail  string    `json:"evaluatorEmail" bson:"evaluatorEmail"`
	EvaluatedAt     time.Time `json:"evaluatedAt" bson:"evaluatedAt"`
	OverallFeedback string    `json:"overallFeedback,omitempty" bson:"overallFeedback,omitempty"`
}

// Attempt is a trainee's answer submission for one question set and date.
type Attempt struct {
	ID                   string         `json:"id" bson:"_id"`
	TraineeID            string         `json:"traineeId" bson:"traineeId"`
	QuestionSetID        string         `json:"questionSetId" bson:"questionSetId"`
	Date                 string         `json:"date" bson:"date"`
	SessionTitle         string         `json:"sessionTitle" bson:"sessionTitle"`
	Answers              []AnswerRecord `json:"answers" bson:"answers"`
	OverallUnderstanding string         `json:"overallUnderstanding,omitempty" bson:"overallUnderstanding,omitempty"`
	Status               AttemptStatus  `json:"status" bson:"status"`
	Remarks              string         `json:"remarks,omitempty" bson:"remarks,omitempty"`
	SubmittedAt          *time.Time     `json:"submittedAt,omitempty" bson:"submittedAt,omitempty"`
	Evaluation           *Evaluation    `json:"evaluation,omitempty" bson:"evaluation,omitempty"`
	Version              int64          `json:"version" bson:"version"`
	CreatedAt            time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// Evaluated reports whether an evaluation is attached.
func (a Attempt) Evaluated() bool {
	return a.Evaluation != nil
}

// Clone returns a deep copy so transitions never share slices or pointers
// with the record they were derived from.
func (a Attempt) Clone() Attempt {
	out := a
	if a.Answers != nil {
		out.Answers = make([]AnswerRecord, len(a.Answers))
		for i, r := range a.Answers {
			if r.Score != nil {
				s := *r.Score
				r.Score = &s
			}
			if r.Options != nil {
				r.Options = append([]string(nil), r.Options...)
			}
			out.Answers[i] = r
		}
	}
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		out.SubmittedAt = &t
	}
	if a.Evaluation != nil {
		e := *a.Evaluation
		out.Evaluation = &e
	}
	return out
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
