package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizhub-service/internal/app"
	"quizhub-service/internal/domain"
	"quizhub-service/internal/selection"
)

func TestCreateQuizValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	cases := []struct {
		name string
		in   app.CreateQuizInput
		kind domain.Kind
	}{
		{"missing name", app.CreateQuizInput{CourseID: courseID, Duration: 5, QuestionIDs: []int64{101}}, domain.KindValidation},
		{"zero duration", app.CreateQuizInput{CourseID: courseID, Name: "x", QuestionIDs: []int64{101}}, domain.KindValidation},
		{"no questions", app.CreateQuizInput{CourseID: courseID, Name: "x", Duration: 5}, domain.KindValidation},
		{"bad mode", app.CreateQuizInput{CourseID: courseID, Name: "x", Duration: 5, Mode: "exam", QuestionIDs: []int64{101}}, domain.KindValidation},
		{"unknown course", app.CreateQuizInput{CourseID: 99, Name: "x", Duration: 5, QuestionIDs: []int64{101}}, domain.KindNotFound},
		{"unknown question", app.CreateQuizInput{CourseID: courseID, Name: "x", Duration: 5, QuestionIDs: []int64{9999}}, domain.KindNotFound},
		{"inline without correct answer", app.CreateQuizInput{
			CourseID: courseID, Name: "x", Duration: 5,
			Questions: []domain.Question{{LOID: 1, Text: "?", Answers: []domain.Answer{{Text: "a"}, {Text: "b"}}}},
		}, domain.KindValidation},
		{"missing learning outcome", app.CreateQuizInput{
			CourseID: courseID, Name: "x", Duration: 5,
			Criteria: &app.QuestionCriteria{LOIDs: []int64{1, 5}, Total: 2, Ratio: selection.Ratio{Medium: 100}},
		}, domain.KindInsufficientData},
		{"bad ratio", app.CreateQuizInput{
			CourseID: courseID, Name: "x", Duration: 5,
			Criteria: &app.QuestionCriteria{LOIDs: []int64{1}, Total: 2, Ratio: selection.Ratio{Medium: 90}},
		}, domain.KindValidation},
	}
	for _, tc := range cases {
		if _, err := h.svc.CreateQuiz(ctx, tc.in); domain.KindOf(err) != tc.kind {
			t.Fatalf("%s: expected kind %v, got %v", tc.name, tc.kind, err)
		}
	}
	page, _ := h.svc.ListQuizzes(ctx, domain.QuizFilter{})
	if page.Total != 0 {
		t.Fatalf("expected nothing persisted, got %d quizzes", page.Total)
	}
}

func TestCreateQuizWithInlineQuestionsAndAlias(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	quiz, err := h.svc.CreateQuiz(ctx, app.CreateQuizInput{
		SubjectID:   courseID,
		Name:        "  Decimals ",
		Duration:    15,
		QuestionIDs: []int64{102},
		Questions: []domain.Question{{
			LOID:    2,
			Text:    "0.1 + 0.2?",
			Answers: []domain.Answer{{Text: "0.3", Correct: true}, {Text: "0.4"}},
		}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if quiz.CourseID != courseID || quiz.Name != "Decimals" || quiz.Mode != domain.ModeAssessment {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if quiz.Status != domain.QuizPending || quiz.PIN != "000001" {
		t.Fatalf("expected pending quiz with pin, got %s %q", quiz.Status, quiz.PIN)
	}
	if len(quiz.QuestionIDs) != 2 || quiz.QuestionIDs[0] != 102 {
		t.Fatalf("expected selected then inline question, got %v", quiz.QuestionIDs)
	}

	view, err := h.svc.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Questions) != 2 || view.Questions[1].Text != "0.1 + 0.2?" || len(view.Questions[1].Answers) != 2 {
		t.Fatalf("expected inline question stored, got %+v", view.Questions)
	}
	if h.events.count(domain.LobbyRoom, domain.EventQuizCreated) != 1 {
		t.Fatalf("expected quizCreated broadcast")
	}
}

func TestCreateQuizRetriesPINCollision(t *testing.T) {
	pins := []string{"111111", "111111", "222222"}
	h := newHarness(t, func(d *app.Deps) {
		d.PIN = func() string {
			p := pins[0]
			if len(pins) > 1 {
				pins = pins[1:]
			}
			return p
		}
	})

	first := h.createQuiz(t, domain.ModeAssessment)
	second := h.createQuiz(t, domain.ModeAssessment)
	if first.PIN != "111111" || second.PIN != "222222" {
		t.Fatalf("expected distinct pins, got %q and %q", first.PIN, second.PIN)
	}
}

func TestCreateQuizGivesUpWhenPINsExhausted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(d *app.Deps) {
		d.PIN = func() string { return "111111" }
		d.Config.PINAttempts = 3
	})
	h.createQuiz(t, domain.ModeAssessment)
	if _, err := h.svc.CreateQuiz(ctx, app.CreateQuizInput{
		CourseID: courseID, Name: "again", Duration: 5, QuestionIDs: []int64{101},
	}); err == nil {
		t.Fatalf("expected pin exhaustion error")
	}
	page, _ := h.svc.ListQuizzes(ctx, domain.QuizFilter{})
	if page.Total != 1 {
		t.Fatalf("expected only the first quiz, got %d", page.Total)
	}
}

func TestListQuizzesUsesCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.createQuiz(t, domain.ModeAssessment)
	h.createQuiz(t, domain.ModePractice)

	page, err := h.svc.ListQuizzes(ctx, domain.QuizFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page != 1 || page.Limit != 1 || page.Total != 2 || page.TotalPages != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}

	// a write that bypasses the service is not visible through the cache
	if err := h.store.InsertQuiz(ctx, &domain.Quiz{CourseID: courseID, Name: "direct", Status: domain.QuizPending}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	page, _ = h.svc.ListQuizzes(ctx, domain.QuizFilter{Limit: 1})
	if page.Total != 2 {
		t.Fatalf("expected cached total 2, got %d", page.Total)
	}

	h.createQuiz(t, domain.ModeAssessment)
	page, _ = h.svc.ListQuizzes(ctx, domain.QuizFilter{Limit: 1})
	if page.Total != 4 {
		t.Fatalf("expected fresh total 4, got %d", page.Total)
	}

	empty, _ := h.svc.ListQuizzes(ctx, domain.QuizFilter{Status: domain.QuizFinished, Limit: 500})
	if empty.Items == nil || len(empty.Items) != 0 || empty.Limit != 10 {
		t.Fatalf("expected empty page with default limit, got %+v", empty)
	}
}

func TestQuizLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	quiz := h.createQuiz(t, domain.ModeAssessment)

	joined := h.join(t, quiz, 7)
	if joined.Resumed || joined.Completed || joined.Result.Status != domain.ResultInProgress {
		t.Fatalf("unexpected join %+v", joined)
	}
	h.join(t, quiz, 8)
	if _, err := h.svc.JoinQuiz(ctx, app.JoinInput{QuizID: quiz.ID, UserID: 9, PIN: "000000"}); !errors.Is(err, domain.ErrInvalidPIN) {
		t.Fatalf("expected invalid pin, got %v", err)
	}

	start, err := h.svc.StartQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if start.Quiz.Status != domain.QuizActive || start.TotalQuestions != 3 || start.FirstQuestion.ID != 101 {
		t.Fatalf("unexpected start %+v", start)
	}
	for _, a := range start.FirstQuestion.Answers {
		if a.Correct {
			t.Fatalf("first question leaks correct answer")
		}
	}
	var ce *domain.ConflictError
	if _, err := h.svc.StartQuiz(ctx, quiz.ID); !errors.As(err, &ce) {
		t.Fatalf("expected conflict on second start, got %v", err)
	}

	h.clock.Advance(2 * time.Second)
	res := h.answer(t, quiz, 7, 101, right(101))
	if !res.Correct || res.Points != 10 || res.Score != 10 || res.Position != 1 || !res.QuestionDone {
		t.Fatalf("unexpected answer result %+v", res)
	}
	if res.NextQuestion == nil || res.NextQuestion.ID != 102 {
		t.Fatalf("expected next question 102, got %+v", res.NextQuestion)
	}
	if _, err := h.svc.SubmitAnswer(ctx, app.AnswerInput{QuizID: quiz.ID, QuestionID: 101, AnswerID: right(101), UserID: 7}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
	if _, err := h.svc.SubmitAnswer(ctx, app.AnswerInput{QuizID: quiz.ID, QuestionID: 101, AnswerID: right(102), UserID: 8}); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected answer not found, got %v", err)
	}
	if _, err := h.svc.SubmitAnswer(ctx, app.AnswerInput{QuizID: quiz.ID, QuestionID: 101, AnswerID: right(101), UserID: 99}); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}

	// assessment allows a single attempt
	res = h.answer(t, quiz, 7, 102, wrong(102))
	if res.Correct || res.Points != 0 || !res.QuestionDone || res.Score != 10 {
		t.Fatalf("unexpected wrong answer result %+v", res)
	}

	if n := h.events.count(domain.UserRoom(quiz.ID, 7), domain.EventUserPositionUpdate); n != 2 {
		t.Fatalf("expected 2 position updates, got %d", n)
	}
	if n := h.events.count(domain.TeachersRoom(quiz.ID), domain.EventTeacherUpdates); n != 2 {
		t.Fatalf("expected 2 teacher updates, got %d", n)
	}
	if n := h.events.count(domain.QuizRoom(quiz.ID), domain.EventLeaderboardUpdate); n != 0 {
		t.Fatalf("assessment must not broadcast the leaderboard, got %d", n)
	}

	end, err := h.svc.EndQuiz(ctx, quiz.ID, app.TriggerManual)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if end.Quiz.Status != domain.QuizFinished || len(end.Results) != 2 {
		t.Fatalf("unexpected end %+v", end)
	}
	top := resultOf(t, end.Results, 7)
	if top.Status != domain.ResultCompleted || top.Score != 10 || top.CorrectAnswers != 1 || top.TotalQuestions != 3 || top.GradeScore != 33.33 {
		t.Fatalf("unexpected result for user 7 %+v", top)
	}
	if idle := resultOf(t, end.Results, 8); idle.Status != domain.ResultCompleted || idle.Score != 0 {
		t.Fatalf("unexpected result for user 8 %+v", idle)
	}
	if end.Leaderboard.Entries[0].UserID != 7 || end.Leaderboard.Entries[0].Position != 1 {
		t.Fatalf("expected user 7 to lead, got %+v", end.Leaderboard.Entries)
	}
	if n := h.events.count(domain.QuizRoom(quiz.ID), domain.EventQuizEnded); n != 1 {
		t.Fatalf("expected one quizEnded, got %d", n)
	}

	if _, err := h.svc.EndQuiz(ctx, quiz.ID, app.TriggerManual); !errors.Is(err, domain.ErrQuizNotActive) {
		t.Fatalf("expected second end to be rejected, got %v", err)
	}
	if _, err := h.svc.SubmitAnswer(ctx, app.AnswerInput{QuizID: quiz.ID, QuestionID: 103, AnswerID: right(103), UserID: 7}); !errors.Is(err, domain.ErrQuizNotActive) {
		t.Fatalf("expected answers rejected after end, got %v", err)
	}
	if _, err := h.svc.JoinQuiz(ctx, app.JoinInput{QuizID: quiz.ID, UserID: 7, PIN: quiz.PIN}); !errors.Is(err, domain.ErrQuizNotJoinable) {
		t.Fatalf("expected finished quiz not joinable, got %v", err)
	}
	lb, err := h.svc.Leaderboard(ctx, quiz.ID)
	if err != nil || len(lb.Entries) != 2 || lb.Entries[0].UserID != 7 {
		t.Fatalf("unexpected durable leaderboard %+v %v", lb, err)
	}
}

func TestPracticeModeRetriesAndLeaderboard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	quiz, err := h.svc.CreateQuiz(ctx, app.CreateQuizInput{
		CourseID:    courseID,
		Name:        "Warmup",
		Duration:    10,
		Mode:        domain.ModePractice,
		Features:    domain.Features{GamificationEnabled: true},
		QuestionIDs: []int64{101, 102},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.join(t, quiz, 7)
	h.start(t, quiz)

	res := h.answer(t, quiz, 7, 101, wrong(101))
	if res.QuestionDone || res.Attempts != 1 || res.NextQuestion != nil {
		t.Fatalf("expected retry allowed, got %+v", res)
	}
	res = h.answer(t, quiz, 7, 101, right(101))
	if !res.QuestionDone || res.Attempts != 2 || res.Points != 10 {
		t.Fatalf("expected second attempt to close the question, got %+v", res)
	}

	for i := 0; i < 2; i++ {
		if res = h.answer(t, quiz, 7, 102, wrong(102)); res.QuestionDone {
			t.Fatalf("attempt %d should leave the question open", i+1)
		}
	}
	res = h.answer(t, quiz, 7, 102, wrong(102))
	if !res.QuestionDone || !res.Completed {
		t.Fatalf("expected attempts exhausted and completion, got %+v", res)
	}
	if _, err := h.svc.SubmitAnswer(ctx, app.AnswerInput{QuizID: quiz.ID, QuestionID: 102, AnswerID: right(102), UserID: 7}); !errors.Is(err, domain.ErrSessionCompleted) {
		t.Fatalf("expected completed participant rejected, got %v", err)
	}
	if n := h.events.count(domain.QuizRoom(quiz.ID), domain.EventLeaderboardUpdate); n != 5 {
		t.Fatalf("expected a leaderboard update per answer, got %d", n)
	}
	if n := h.events.count(domain.QuizRoom(quiz.ID), domain.EventShowLeaderboard); n != 1 {
		t.Fatalf("expected showLeaderboard on completion, got %d", n)
	}
}

func TestJoinResumesLiveState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	quiz := h.createQuiz(t, domain.ModeAssessment)
	first := h.join(t, quiz, 7)
	h.start(t, quiz)
	h.answer(t, quiz, 7, 101, right(101))

	again := h.join(t, quiz, 7)
	if !again.Resumed || again.Session == nil || again.Session.ID != first.Session.ID {
		t.Fatalf("expected resumed session %s, got %+v", first.Session.ID, again.Session)
	}
	if again.Session.CurrentQuestion != 1 || again.CurrentQuestion == nil || again.CurrentQuestion.ID != 102 {
		t.Fatalf("expected to resume at question 102, got %+v", again.CurrentQuestion)
	}

	// an expired session is rebuilt from the registry record
	if err := h.cache.DeleteSession(ctx, first.Session.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	rebuilt := h.join(t, quiz, 7)
	if rebuilt.Session.ID != first.Session.ID || rebuilt.Session.CurrentQuestion != 1 {
		t.Fatalf("expected rebuilt session, got %+v", rebuilt.Session)
	}
	if ans := rebuilt.Session.Answers[101]; !ans.Correct || ans.Attempts != 1 {
		t.Fatalf("expected rebuilt answers, got %+v", rebuilt.Session.Answers)
	}

	user := domain.UserRoom(quiz.ID, 7)
	if h.events.count(user, domain.EventRestoreState) != 2 || h.events.count(user, domain.EventRestoreProgress) != 2 {
		t.Fatalf("expected restore events per rejoin")
	}
	if h.events.count(domain.TeachersRoom(quiz.ID), domain.EventNewParticipant) != 1 {
		t.Fatalf("expected a single newParticipant")
	}
	if h.events.count(domain.TeachersRoom(quiz.ID), domain.EventParticipantRejoined) != 2 {
		t.Fatalf("expected participantRejoined per rejoin")
	}
}

func TestNextQuestionAdvancesAndReveals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	quiz := h.createQuiz(t, domain.ModeAssessment)
	if _, err := h.svc.NextQuestion(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizNotActive) {
		t.Fatalf("expected pending quiz rejected, got %v", err)
	}
	h.start(t, quiz)

	for want := 1; want <= 2; want++ {
		next, err := h.svc.NextQuestion(ctx, quiz.ID)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if next.Finished || next.State.CurrentIndex != want || next.State.CurrentQuestionID != quiz.QuestionIDs[want] {
			t.Fatalf("unexpected state %+v", next)
		}
	}
	last, err := h.svc.NextQuestion(ctx, quiz.ID)
	if err != nil || !last.Finished {
		t.Fatalf("expected finished marker, got %+v %v", last, err)
	}
	if h.events.count(domain.QuizRoom(quiz.ID), domain.EventNewQuestion) != 3 {
		t.Fatalf("expected one newQuestion per opened question")
	}
	if h.events.count(domain.QuizRoom(quiz.ID), domain.EventShowLeaderboard) != 1 {
		t.Fatalf("expected showLeaderboard past the last question")
	}
}

func TestShuffleOnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	quiz, err := h.svc.CreateQuiz(ctx, app.CreateQuizInput{
		CourseID: courseID,
		Name:     "Drawn",
		Duration: 10,
		Criteria: &app.QuestionCriteria{LOIDs: []int64{1}, Total: 2, Ratio: selection.Ratio{Medium: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(quiz.QuestionIDs) != 2 {
		t.Fatalf("expected 2 drawn questions, got %v", quiz.QuestionIDs)
	}

	shuffled, err := h.svc.ShuffleQuestions(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	if len(shuffled.QuestionIDs) != 2 || shuffled.QuestionIDs[0] == shuffled.QuestionIDs[1] {
		t.Fatalf("expected 2 distinct questions, got %v", shuffled.QuestionIDs)
	}
	for _, id := range shuffled.QuestionIDs {
		if id < 101 || id > 104 {
			t.Fatalf("question %d outside the learning outcome", id)
		}
	}
	if h.events.count(domain.QuizRoom(quiz.ID), domain.EventQuizUpdated) != 1 {
		t.Fatalf("expected quizUpdated broadcast")
	}

	h.start(t, quiz)
	var ce *domain.ConflictError
	if _, err := h.svc.ShuffleQuestions(ctx, quiz.ID); !errors.As(err, &ce) || ce.Hint == "" {
		t.Fatalf("expected conflict with hint, got %v", err)
	}
}

func TestLeaveQuizRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	quiz := h.createQuiz(t, domain.ModeAssessment)
	h.join(t, quiz, 7)

	if err := h.svc.LeaveQuiz(ctx, quiz.ID, 7); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := h.store.Result(ctx, quiz.ID, 7); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected result removed, got %v", err)
	}
	if _, found, _ := h.registry.Participant(ctx, quiz.ID, 7); found {
		t.Fatalf("expected registry record removed")
	}
	if h.events.count(domain.TeachersRoom(quiz.ID), domain.EventParticipantLeft) != 1 {
		t.Fatalf("expected participantLeft broadcast")
	}
	if err := h.svc.LeaveQuiz(ctx, quiz.ID, 7); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found on second leave, got %v", err)
	}

	joined := h.join(t, quiz, 8)
	h.start(t, quiz)
	if _, err := h.svc.FinishSession(ctx, joined.Session.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := h.svc.LeaveQuiz(ctx, quiz.ID, 8); !errors.Is(err, domain.ErrSessionCompleted) {
		t.Fatalf("expected completed participant to stay, got %v", err)
	}
}
