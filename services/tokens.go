// services/tokens.go - Token allocation capability
//
// The chain itself is an external capability; the evaluation pipeline only
// sees the {success, transactionRef} | {success:false, error} contract and
// never assumes success. The simulated implementation stands in for the
// smart-contract integration.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/google/uuid"
)

// AllocationResult is the outcome of one token allocation attempt.
type AllocationResult struct {
	Success        bool   `json:"success"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TokenAllocator transfers tokens to a payout address.
type TokenAllocator interface {
	Allocate(ctx context.Context, playerID uint, walletAddress string, amount int, reason string) AllocationResult
}

// NFTMinter requests an NFT mint for a payout address.
type NFTMinter interface {
	MintNFT(ctx context.Context, playerID uint, walletAddress string, name, description string) AllocationResult
}

// SimulatedTokenService is the development-mode chain backend. It fabricates
// transaction hashes instead of submitting anything.
type SimulatedTokenService struct{}

func NewSimulatedTokenService() *SimulatedTokenService {
	return &SimulatedTokenService{}
}

var (
	_ TokenAllocator = (*SimulatedTokenService)(nil)
	_ NFTMinter      = (*SimulatedTokenService)(nil)
)

func (s *SimulatedTokenService) Allocate(_ context.Context, playerID uint, walletAddress string, amount int, reason string) AllocationResult {
	if amount <= 0 {
		return AllocationResult{Success: false, Error: "invalid allocation amount"}
	}
	hash := fakeTxHash()
	log.Printf("TOKEN_TRANSACTION: player=%d wallet=%s amount=%d reason=%q hash=%s", playerID, walletAddress, amount, reason, hash)
	return AllocationResult{
		Success:        true,
		TransactionRef: uuid.NewString(),
		TxHash:         hash,
	}
}

func (s *SimulatedTokenService) MintNFT(_ context.Context, playerID uint, walletAddress string, name, description string) AllocationResult {
	hash := fakeTxHash()
	log.Printf("NFT_MINT: player=%d wallet=%s name=%q hash=%s", playerID, walletAddress, name, hash)
	return AllocationResult{
		Success:        true,
		TransactionRef: uuid.NewString(),
		TxHash:         hash,
	}
}

func fakeTxHash() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "0x" + uuid.NewString()
	}
	return "0x" + hex.EncodeToString(raw)
}
