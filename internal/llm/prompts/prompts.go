// Package prompts renders the instructions sent to the vision model that
// reads scanned answer sheets.
package prompts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

// UserInstruction accompanies the image in the user message.
const UserInstruction = "Extract student_name, student_number and answers_structured from this exam image."

const maxTitleRunes = 200

//go:embed extract.txt
var extractSource string

var tagRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)

var (
	loadOnce        sync.Once
	loadErr         error
	extractTemplate *template.Template
)

// ExtractData holds template data for the extraction prompt.
type ExtractData struct {
	ExamTitle    string
	NumQuestions int
}

// Load parses the embedded templates. It is safe to call more than once.
func Load() error {
	loadOnce.Do(func() {
		extractTemplate, loadErr = template.New("extract").Parse(extractSource)
		if loadErr != nil {
			loadErr = fmt.Errorf("parse extraction prompt: %w", loadErr)
		}
	})
	return loadErr
}

// BuildExtractPrompt renders the system prompt for answer extraction.
func BuildExtractPrompt(data ExtractData) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	if extractTemplate == nil {
		return "", errors.New("extraction prompt not loaded")
	}
	data.ExamTitle = sanitizeTitle(data.ExamTitle)
	if data.NumQuestions < 0 {
		data.NumQuestions = 0
	}
	var buf bytes.Buffer
	if err := extractTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeTitle keeps exam titles from smuggling instructions into the prompt.
func sanitizeTitle(title string) string {
	title = tagRegex.ReplaceAllString(title, "")
	title = strings.Join(strings.Fields(title), " ")
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return title
}
