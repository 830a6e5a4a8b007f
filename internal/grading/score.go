package grading

import (
	"fmt"
	"math"
	"strings"

	"github.com/correctme/examgrader/internal/model"
)

const (
	// ScaleMax is the top of the normalized grading scale.
	ScaleMax = 20.0
	// scoreStep is the granularity of the final score.
	scoreStep = 0.25
	// maxMissedInFeedback caps how many questions feedback names.
	maxMissedInFeedback = 5
	awardEpsilon        = 1e-5
)

// Messages supplies the feedback sentences attached to a grade.
type Messages interface {
	AllCorrect() string
	AllWrong() string
	Missed(questionIDs []string) string
}

type englishMessages struct{}

func (englishMessages) AllCorrect() string { return "Excellent, all answers correct." }

func (englishMessages) AllWrong() string {
	return "Most answers are incorrect or missing. Please review and try again."
}

func (englishMessages) Missed(ids []string) string {
	return fmt.Sprintf("Several incorrect/missing answers (e.g., %s). Revise those topics.", strings.Join(ids, ", "))
}

// EnglishMessages returns the built-in English feedback sentences.
func EnglishMessages() Messages { return englishMessages{} }

// Options tune a grading pass.
type Options struct {
	// AllowNear gives half credit to text answers that nearly match.
	AllowNear bool
	// Messages renders feedback; nil means English.
	Messages Messages
}

// Score grades answers (a mapping of question key to raw answer) against
// an answer key. It is a pure function of its inputs.
func Score(key []model.AnswerKeyItem, answers model.Value, opts Options) (model.Result, error) {
	if len(key) == 0 || answers.Kind() != model.KindMapping || answers.Len() == 0 {
		return model.Result{}, ErrIncompleteInput
	}
	msgs := opts.Messages
	if msgs == nil {
		msgs = englishMessages{}
	}

	expanded := make([][]model.Subpart, len(key))
	totals := make([]float64, len(key))
	var maxPoints float64
	for i, item := range key {
		expanded[i], totals[i] = Expand(item)
		maxPoints += totals[i]
	}
	if maxPoints <= 0 {
		return model.Result{}, fmt.Errorf("answer key is worth no points: %w", ErrIncompleteInput)
	}

	details := make([]model.GradingDetail, 0, len(key))
	var rawTotal float64
	for i, item := range key {
		positional := fmt.Sprintf("Q%d", i+1)
		qid := strings.TrimSpace(string(item.QuestionID))

		studKey := positional
		if qid != "" && answers.Has(qid) {
			studKey = qid
		}
		var matched *string
		studentAnswer, ok := answers.Get(studKey)
		if ok {
			k := studKey
			matched = &k
		}

		var awarded float64
		subDetails := make([]model.SubpartDetail, 0, len(expanded[i]))
		for j, sp := range expanded[i] {
			sAns := Pick(studentAnswer, j, sp.ID)
			got := GradeLeaf(sp.Type, sp.Expected, sAns, sp.Points, opts.AllowNear)
			awarded += got
			subDetails = append(subDetails, model.SubpartDetail{
				SubID:    sp.ID,
				Type:     sp.Type,
				Points:   round3(sp.Points),
				Awarded:  round3(got),
				Expected: sp.Expected,
				Student:  sAns,
			})
		}
		rawTotal += awarded

		if qid == "" {
			qid = positional
		}
		details = append(details, model.GradingDetail{
			Index:             i + 1,
			QuestionID:        qid,
			MatchedStudentKey: matched,
			Type:              item.Type.OrDefault(),
			Points:            round3(totals[i]),
			Awarded:           round3(awarded),
			Expected:          item.ExpectedAnswer,
			Student:           studentAnswer,
			Subparts:          subDetails,
		})
	}

	score := Normalize20(rawTotal, maxPoints)
	return model.Result{
		Score:          score,
		ScoreRaw:       round3(rawTotal),
		MaxPoints:      round3(maxPoints),
		Feedback:       feedbackFor(score, details, msgs),
		GradingDetails: details,
	}, nil
}

// Normalize20 rescales raw points to the 0-20 scale, snapped to 0.25.
func Normalize20(raw, maxPoints float64) float64 {
	if maxPoints <= 0 {
		return 0
	}
	scaled := raw * ScaleMax / maxPoints
	snapped := math.RoundToEven(scaled/scoreStep) * scoreStep
	return math.Max(0, math.Min(ScaleMax, snapped))
}

func feedbackFor(score float64, details []model.GradingDetail, msgs Messages) string {
	switch score {
	case ScaleMax:
		return msgs.AllCorrect()
	case 0:
		return msgs.AllWrong()
	}
	var missed []string
	for _, d := range details {
		if d.Awarded < d.Points-awardEpsilon {
			missed = append(missed, d.QuestionID)
			if len(missed) == maxMissedInFeedback {
				break
			}
		}
	}
	return msgs.Missed(missed)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
