package domain

import "strconv"

// Outbound realtime event names.
const (
	EventQuizCreated         = "quizCreated"
	EventQuizStarted         = "quizStarted"
	EventNewQuestion         = "newQuestion"
	EventQuizUpdated         = "quizUpdated"
	EventQuizEnded           = "quizEnded"
	EventShowLeaderboard     = "showLeaderboard"
	EventLeaderboardUpdate   = "leaderboardUpdate"
	EventUserPositionUpdate  = "userPositionUpdate"
	EventRestoreState        = "restoreState"
	EventRestoreProgress     = "restoreProgress"
	EventTeacherUpdates      = "teacherUpdates"
	EventParticipantRejoined = "participantRejoined"
	EventNewParticipant      = "newParticipant"
	EventParticipantLeft     = "participantLeft"
)

// LobbyRoom receives quiz-list level events such as quiz creation.
const LobbyRoom = "quizzes"

func quizPrefix(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10)
}

// QuizRoom is the room every connection of a quiz joins.
func QuizRoom(quizID int64) string { return quizPrefix(quizID) }

// TeachersRoom is the observer room of a quiz.
func TeachersRoom(quizID int64) string { return quizPrefix(quizID) + ":teachers" }

// StudentsRoom is the participant room of a quiz.
func StudentsRoom(quizID int64) string { return quizPrefix(quizID) + ":students" }

// UserRoom addresses a single participant of a quiz.
func UserRoom(quizID, userID int64) string {
	return quizPrefix(quizID) + ":" + strconv.FormatInt(userID, 10)
}
