package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/correctme/examgrader/internal/llm/prompts"
	"github.com/correctme/examgrader/internal/model"
)

// UnknownStudent is used when no usable name can be read from the sheet.
const UnknownStudent = "Unknown Student"

// ErrNoJSON is returned when the model output holds no JSON object.
var ErrNoJSON = errors.New("no JSON object found in model output")

// Extraction is what the vision model read from one answer sheet. Answers
// is a mapping keyed Q1, Q2, ... ready to be stored as a submission.
type Extraction struct {
	StudentName   string      `json:"student_name"`
	StudentNumber string      `json:"student_number,omitempty"`
	Answers       model.Value `json:"answers_structured"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Ping checks that the endpoint answers by listing its models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// ExtractAnswers sends a photographed answer sheet to the vision model and
// returns the student's name and canonicalized answers.
func (c *Client) ExtractAnswers(ctx context.Context, image []byte, mimeType string, hint prompts.ExtractData) (Extraction, error) {
	if len(image) == 0 {
		return Extraction{}, errors.New("empty image")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	system, err := prompts.BuildExtractPrompt(hint)
	if err != nil {
		return Extraction{}, err
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompts.UserInstruction},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailAuto,
				}},
			}},
		},
		Temperature: 0.1,
		TopP:        0.8,
		MaxTokens:   800,
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Extraction{}, fmt.Errorf("LLM returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("LLM extraction response", "raw", raw)
	return parseExtraction(raw)
}

type extractionPayload struct {
	StudentName       model.LooseString `json:"student_name"`
	StudentID         model.LooseString `json:"student_id"`
	Name              model.LooseString `json:"name"`
	Student           model.LooseString `json:"student"`
	StudentNumber     model.LooseString `json:"student_number"`
	AnswersStructured model.Value       `json:"answers_structured"`
	Answers           model.Value       `json:"answers"`
}

func parseExtraction(raw string) (Extraction, error) {
	doc, err := extractFirstJSON(raw)
	if err != nil {
		return Extraction{}, err
	}
	var p extractionPayload
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return Extraction{}, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	name := cleanStudentName(firstNonEmpty(string(p.StudentName), string(p.StudentID), string(p.Name), string(p.Student)))
	number := strings.TrimSpace(string(p.StudentNumber))
	if name == "" || isDigits(name) {
		if number == "" {
			number = strings.TrimSpace(string(p.StudentID))
		}
		name = UnknownStudent
	}

	answers := p.AnswersStructured
	if answers.IsNull() {
		answers = p.Answers
	}
	return Extraction{
		StudentName:   name,
		StudentNumber: number,
		Answers:       canonicalAnswers(answers),
	}, nil
}

var (
	fencedJSONRegex = regexp.MustCompile("(?is)```json\\s*(\\{.*?\\})\\s*```")
	bareJSONRegex   = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractFirstJSON finds the JSON object in model output: a fenced ```json
// block if present, else the span from the first '{' to the last '}'.
func extractFirstJSON(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", ErrNoJSON)
	}
	if m := fencedJSONRegex.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	if m := bareJSONRegex.FindString(text); m != "" {
		return m, nil
	}
	return "", ErrNoJSON
}

var (
	questionKeyRegex = regexp.MustCompile(`^q?\d+$`)
	nonDigitRegex    = regexp.MustCompile(`\D`)
	spaceRegex       = regexp.MustCompile(`\s+`)
	edgePunctRegex   = regexp.MustCompile(`^[\W_]+|[\W_]+$`)
)

// canonicalAnswers rekeys an answer mapping to Q1, Q2, ... Keys such as "3",
// "q3" or "Q03" keep their number; any other key takes its 1-based position.
// Entries are emitted in numeric order, a later duplicate number wins, and
// a non-mapping becomes the answer to Q1.
func canonicalAnswers(v model.Value) model.Value {
	if v.IsNull() {
		return model.Map()
	}
	if v.Kind() != model.KindMapping {
		return model.Map(model.E("Q1", v))
	}
	byIndex := map[int]model.Value{}
	for i, k := range v.Keys() {
		pos := i + 1
		key := strings.ToLower(strings.TrimSpace(k))
		idx := pos
		if questionKeyRegex.MatchString(key) {
			if n, err := strconv.Atoi(nonDigitRegex.ReplaceAllString(key, "")); err == nil {
				idx = n
			}
		}
		val, _ := v.Get(k)
		byIndex[idx] = val
	}
	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	entries := make([]model.Entry, 0, len(indexes))
	for _, idx := range indexes {
		entries = append(entries, model.E("Q"+strconv.Itoa(idx), byIndex[idx]))
	}
	return model.Map(entries...)
}

// cleanStudentName collapses whitespace, trims edge punctuation and
// title-cases names that are not purely numeric.
func cleanStudentName(s string) string {
	s = spaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
	s = edgePunctRegex.ReplaceAllString(s, "")
	if s == "" || isDigits(s) {
		return s
	}
	return cases.Title(language.Und).String(s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
