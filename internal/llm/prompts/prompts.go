// Package prompts renders the score-suggestion prompts sent to the grading
// assistant.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

// FS holds the built-in prompt templates.
//
//go:embed templates/*.txt
var FS embed.FS

var (
	traineeAnswerRegex      = regexp.MustCompile(`(?i)</?\s*trainee-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// Variant selects how strictly the assistant grades.
type Variant string

const (
	Strict   Variant = "strict"
	Standard Variant = "standard"
	Lenient  Variant = "lenient"
)

var variants = []Variant{Strict, Standard, Lenient}

// IsValidVariant checks if a variant name is known.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if string(known) == v {
			return true
		}
	}
	return false
}

// maxAnswerRunes caps a single answer in the prompt.
const maxAnswerRunes = 10000

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

// Item is one answered question in a suggestion prompt.
type Item struct {
	Index         int
	Topic         string
	Question      string
	CorrectAnswer string
	Answer        string
}

// SuggestData holds template data for score suggestions.
type SuggestData struct {
	SessionTitle string
	MaxScore     string
	Items        []Item
}

// Load parses templates/suggest_<variant>.txt from fsys once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		parsed := make(map[Variant]*template.Template, len(variants))
		for _, v := range variants {
			name := "templates/suggest_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			parsed[v] = tmpl
		}
		templates = parsed
	})
	return loadErr
}

// BuildSuggestPrompt renders the prompt for variant. Answers are sanitized so
// a trainee cannot close the answer block or inject instructions.
func BuildSuggestPrompt(variant Variant, sessionTitle string, maxScore float64, items []Item) (string, error) {
	if templates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := SuggestData{
		SessionTitle: sessionTitle,
		MaxScore:     strconv.FormatFloat(maxScore, 'f', -1, 64),
		Items:        make([]Item, len(items)),
	}
	for i, it := range items {
		it.Answer = sanitizeAnswer(it.Answer)
		data.Items[i] = it
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = traineeAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}
	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
