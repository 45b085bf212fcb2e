package redis

import (
	"math/rand/v2"
	"strconv"
	"time"
)

const listKeyPattern = "quizzes:*"

func quizKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10)
}

func questionsKey(quizID int64) string { return quizKey(quizID) + ":questions" }
func stateKey(quizID int64) string     { return quizKey(quizID) + ":state" }

// quizSessionsKey is the set of session ids opened for a quiz, used by purge.
func quizSessionsKey(quizID int64) string { return quizKey(quizID) + ":sessions" }

func sessionKey(sessionID string) string { return "quiz_session:" + sessionID }

func registryKey(quizID int64) string {
	return "quiz_sessions:" + strconv.FormatInt(quizID, 10)
}

func participantsKey(quizID int64) string { return registryKey(quizID) + ":participants" }

func participantKey(quizID, userID int64) string {
	return participantsKey(quizID) + ":" + strconv.FormatInt(userID, 10)
}

func currentQuestionKey(quizID int64) string { return registryKey(quizID) + ":current_question" }

// ttlWithJitter spreads expiries by up to 10% so cached quizzes do not all
// expire together.
func ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(rand.Int64N(jitterMax+1))
}
