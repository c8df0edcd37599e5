// services/sweeper.go - Expired challenge sweeper
package services

import (
	"context"
	"log"
	"time"
)

const sweepInterval = time.Minute

// SweeperService periodically marks overdue pending/in_progress challenges
// as expired so they can no longer accept submissions or be evaluated.
type SweeperService struct {
	challenges *GormChallengeStore
	interval   time.Duration

	stop chan struct{}
	done chan struct{}
}

var sweeperService *SweeperService

// InitSweeperService initializes the singleton sweeper.
func InitSweeperService(challenges *GormChallengeStore) {
	sweeperService = &SweeperService{
		challenges: challenges,
		interval:   sweepInterval,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// GetSweeperService returns the initialized sweeper.
func GetSweeperService() *SweeperService {
	return sweeperService
}

// Start runs the sweep loop in the background.
func (s *SweeperService) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
	log.Println("Challenge sweeper started")
}

// Stop halts the sweep loop and waits for it to exit.
func (s *SweeperService) Stop() {
	close(s.stop)
	<-s.done
	log.Println("Challenge sweeper stopped")
}

// Sweep expires every active challenge whose deadline has passed.
func (s *SweeperService) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.challenges.MarkExpired(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Challenge sweep failed: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("Expired %d overdue challenges", expired)
	}
}
