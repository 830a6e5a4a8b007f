package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/correctme/examgrader/internal/grading"
	"github.com/correctme/examgrader/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestExam(t *testing.T, s *Store, id, keyJSON string) model.Exam {
	t.Helper()
	var key []model.AnswerKeyItem
	if err := json.Unmarshal([]byte(keyJSON), &key); err != nil {
		t.Fatalf("parse key: %v", err)
	}
	e, err := s.PutExam(context.Background(), model.Exam{ID: id, Title: "exam " + id, AnswerKey: key})
	if err != nil {
		t.Fatalf("PutExam: %v", err)
	}
	return e
}

func insertTestSubmission(t *testing.T, s *Store, examID, answersJSON string) model.Submission {
	t.Helper()
	v, err := model.ParseValue([]byte(answersJSON))
	if err != nil {
		t.Fatalf("parse answers: %v", err)
	}
	sub, err := s.CreateSubmission(context.Background(), model.Submission{
		ExamID:            examID,
		StudentName:       "Ada",
		AnswersStructured: v,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	return sub
}

func TestExamCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	list, err := s.ListExams(ctx)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	e := insertTestExam(t, s, "geo", `[{"question_id":"cap","expected_answer":"Paris"},{"type":"numeric","expected_answer":{"value":5,"tolerance":0.1}}]`)
	if e.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	got, err := s.GetExam(ctx, "geo")
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if len(got.AnswerKey) != 2 || got.AnswerKey[0].QuestionID != "cap" || got.AnswerKey[1].Type != model.TypeNumeric {
		t.Errorf("answer key not round-tripped: %+v", got.AnswerKey)
	}
	if tol, _ := got.AnswerKey[1].ExpectedAnswer.Get("tolerance"); !tol.Equal(model.Number(0.1)) {
		t.Errorf("tolerance = %v", tol)
	}

	// Upsert keeps id and replaces the key.
	insertTestExam(t, s, "geo", `[{"expected_answer":"x"}]`)
	got, _ = s.GetExam(ctx, "geo")
	if len(got.AnswerKey) != 1 {
		t.Errorf("expected replaced key with 1 item, got %d", len(got.AnswerKey))
	}

	// Generated id.
	gen := insertTestExam(t, s, "", `[{"expected_answer":"y"}]`)
	if gen.ID == "" {
		t.Error("expected a generated id")
	}

	insertTestSubmission(t, s, "geo", `{"Q1":"x"}`)
	list, err = s.ListExams(ctx)
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 exams, got %d", len(list))
	}
	for _, sum := range list {
		if sum.ID == "geo" && (sum.NumSubmissions != 1 || sum.NumQuestions != 1) {
			t.Errorf("geo summary = %+v", sum)
		}
	}

	_, err = s.GetExam(ctx, "nope")
	if !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTestExam(t, s, "geo", `[{"expected_answer":"Paris"}]`)

	_, err := s.CreateSubmission(ctx, model.Submission{ExamID: "missing", AnswersStructured: model.Map()})
	if !errors.Is(err, grading.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown exam, got %v", err)
	}

	sub := insertTestSubmission(t, s, "geo", `{"b":"two","a":[1,"x"]}`)
	if sub.ID == "" {
		t.Fatal("expected generated id")
	}
	if sub.Score != nil || sub.GradedAt != nil || sub.GradingDetails != nil {
		t.Errorf("new submission should be ungraded: %+v", sub)
	}
	if keys := sub.AnswersStructured.Keys(); len(keys) != 2 || keys[0] != "b" {
		t.Errorf("answer key order lost: %v", keys)
	}

	res := model.Result{
		Score: 15, ScoreRaw: 0.75, MaxPoints: 1, Feedback: "ok",
		GradingDetails: []model.GradingDetail{{Index: 1, QuestionID: "Q1", Points: 1, Awarded: 0.75}},
	}
	if err := s.UpdateSubmissionResult(ctx, sub.ID, res); err != nil {
		t.Fatalf("UpdateSubmissionResult: %v", err)
	}
	got, err := s.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if got.Score == nil || *got.Score != 15 || *got.ScoreRaw != 0.75 || *got.MaxPoints != 1 {
		t.Errorf("scores not stored: %+v", got)
	}
	if got.Feedback != "ok" || len(got.GradingDetails) != 1 || got.GradedAt == nil {
		t.Errorf("result fields not stored: %+v", got)
	}

	if err := s.UpdateSubmissionResult(ctx, "missing", res); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
	if _, err := s.GetSubmission(ctx, "missing"); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("expected ErrNotFound on get, got %v", err)
	}
}

func TestListSubmissionsByExam(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTestExam(t, s, "a", `[{"expected_answer":"x"}]`)
	insertTestExam(t, s, "b", `[{"expected_answer":"x"}]`)

	first := insertTestSubmission(t, s, "a", `{"Q1":"1"}`)
	second := insertTestSubmission(t, s, "a", `{"Q1":"2"}`)
	insertTestSubmission(t, s, "b", `{"Q1":"3"}`)

	subs, err := s.ListSubmissionsByExam(ctx, "a")
	if err != nil {
		t.Fatalf("ListSubmissionsByExam: %v", err)
	}
	if len(subs) != 2 || subs[0].ID != first.ID || subs[1].ID != second.ID {
		t.Errorf("unexpected submissions: %+v", subs)
	}

	ids, err := s.SubmissionIDsByExam(ctx, "a")
	if err != nil {
		t.Fatalf("SubmissionIDsByExam: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID {
		t.Errorf("unexpected ids: %v", ids)
	}

	empty, err := s.ListSubmissionsByExam(ctx, "none")
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v, %v", empty, err)
	}
}

func TestStoreBacksGradingEngine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTestExam(t, s, "geo", `[{"type":"numeric","expected_answer":{"value":5,"tolerance":0.1}},{"expected_answer":["paris","france"]}]`)
	good := insertTestSubmission(t, s, "geo", `{"Q1":"5.05","Q2":{"a":"Paris","b":"france"}}`)
	empty := insertTestSubmission(t, s, "geo", `{}`)

	eng := grading.New(s)
	res, err := eng.ScoreSubmission(ctx, good.ID)
	if err != nil {
		t.Fatalf("ScoreSubmission: %v", err)
	}
	if res.Score != 20 {
		t.Errorf("score = %v, want 20", res.Score)
	}
	stored, _ := s.GetSubmission(ctx, good.ID)
	if stored.Score == nil || *stored.Score != 20 {
		t.Errorf("stored score = %v", stored.Score)
	}
	if m := stored.GradingDetails[0].MatchedStudentKey; m == nil || *m != "Q1" {
		t.Errorf("matched_student_key = %v", m)
	}

	if _, err := eng.ScoreSubmission(ctx, empty.ID); !errors.Is(err, grading.ErrIncompleteInput) {
		t.Errorf("expected ErrIncompleteInput, got %v", err)
	}
	stored, _ = s.GetSubmission(ctx, empty.ID)
	if stored.Score != nil {
		t.Error("ungradable submission must stay ungraded")
	}

	if _, err := eng.ScoreSubmission(ctx, "missing"); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExportExam(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTestExam(t, s, "geo", `[{"expected_answer":"Paris"},{"expected_answer":["a","b"]}]`)
	graded := insertTestSubmission(t, s, "geo", `{"Q1":"paris","Q2":"a, c"}`)
	insertTestSubmission(t, s, "geo", `{"Q1":"rome"}`)

	if _, err := grading.New(s).ScoreSubmission(ctx, graded.ID); err != nil {
		t.Fatalf("ScoreSubmission: %v", err)
	}

	exp, err := s.ExportExam(ctx, "geo")
	if err != nil {
		t.Fatalf("ExportExam: %v", err)
	}
	if exp.NumQuestions != 2 || exp.MaxPoints != 2 {
		t.Errorf("header = %+v", exp)
	}
	if len(exp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(exp.Results))
	}
	r := exp.Results[0]
	if !r.Graded || r.Score != 15 || len(r.Questions) != 2 || r.Questions[1].Awarded != 0.5 {
		t.Errorf("graded result = %+v", r)
	}
	if exp.Results[1].Graded || exp.Results[1].Questions != nil {
		t.Errorf("ungraded result = %+v", exp.Results[1])
	}

	if _, err := s.ExportExam(ctx, "nope"); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.UserCount(ctx)
	if err != nil || count != 0 {
		t.Fatalf("UserCount = %d, %v", count, err)
	}

	id, err := s.CreateUser(ctx, model.User{
		Username: "prof", DisplayName: "Prof", PasswordHash: "hash",
		Role: model.UserRoleInstructor, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := s.GetUserByUsername(ctx, "prof")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername: %v, %v", u, err)
	}
	if u.ID != id || u.Role != model.UserRoleInstructor || !u.Active || u.PasswordHash != "hash" {
		t.Errorf("user = %+v", u)
	}

	if _, err := s.CreateUser(ctx, model.User{Username: "prof", PasswordHash: "x", Role: model.UserRoleAdmin}); err == nil {
		t.Error("expected duplicate username to fail")
	}

	if err := s.ToggleUserActive(ctx, id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByID(ctx, id)
	if u == nil || u.Active {
		t.Errorf("expected inactive user, got %+v", u)
	}

	if err := s.ToggleUserActive(ctx, 999); !errors.Is(err, grading.ErrNotFound) {
		t.Errorf("toggle missing user: got %v, want ErrNotFound", err)
	}

	missing, err := s.GetUserByUsername(ctx, "ghost")
	if err != nil || missing != nil {
		t.Errorf("expected nil user, got %v, %v", missing, err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Errorf("ListUsers = %v, %v", users, err)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash(ctx, "/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash(ctx, "/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, err = s.GetImportedFileHash(ctx, "/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash(ctx, "/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Driver("oracle"), ""); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
