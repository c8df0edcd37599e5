// models/errors.go
package models

import "errors"

var (
	// ErrChallengeNotFound indicates the challenge id does not exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrNotParticipant is returned when a student acts on someone else's challenge.
	ErrNotParticipant = errors.New("not a participant in this challenge")
	// ErrChallengeCompleted rejects submissions to an already evaluated challenge.
	ErrChallengeCompleted = errors.New("challenge already completed")
	// ErrChallengeExpired rejects actions on an expired challenge.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrAlreadySubmitted is returned on a duplicate submission by the same player.
	ErrAlreadySubmitted = errors.New("answers already submitted")
	// ErrTimeLimitExceeded rejects submissions past the challenge deadline.
	ErrTimeLimitExceeded = errors.New("challenge time limit exceeded")
	// ErrEvaluationNotReady means evaluation was triggered before both players
	// submitted. Retryable; never moves the challenge to the error state.
	ErrEvaluationNotReady = errors.New("both players must submit before evaluation")
	// ErrAlreadyEvaluated means another evaluation attempt won the race. Callers
	// treat it as success.
	ErrAlreadyEvaluated = errors.New("challenge already evaluated")
	// ErrResultNotReady distinguishes "no result yet" from "challenge not found".
	ErrResultNotReady = errors.New("challenge not yet completed")
	// ErrRewardsAlreadyDistributed guards reward distribution re-runs.
	ErrRewardsAlreadyDistributed = errors.New("rewards already distributed for this result")
)
