// handlers/deps.go - Shared handler dependencies, wired once from main
package handlers

import (
	"chainverse/services"
)

var (
	challengeStore  *services.GormChallengeStore
	submissionStore *services.GormSubmissionStore
	resultStore     *services.GormResultStore
	evaluationQueue services.EvaluationQueue
	evaluator       *services.EvaluationService
	leaderboard     *services.LeaderboardService
)

// Init wires the package-level services the handlers dispatch to.
func Init(
	challenges *services.GormChallengeStore,
	submissions *services.GormSubmissionStore,
	results *services.GormResultStore,
	queue services.EvaluationQueue,
	eval *services.EvaluationService,
	lb *services.LeaderboardService,
) {
	challengeStore = challenges
	submissionStore = submissions
	resultStore = results
	evaluationQueue = queue
	evaluator = eval
	leaderboard = lb
}
