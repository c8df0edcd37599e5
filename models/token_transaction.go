// models/token_transaction.go - Audit trail for reward allocation attempts
package models

import (
	"time"
)

// Token transaction statuses.
const (
	TokenTxStatusCompleted = "completed"
	TokenTxStatusFailed    = "failed"
	TokenTxStatusEscrowed  = "escrowed"
)

// TokenTransaction records every allocation attempt, successful or not.
// Escrowed rows hold a claim code the player can redeem once a wallet is on
// file.
type TokenTransaction struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Reference string `gorm:"uniqueIndex;not null;size:64" json:"reference"`

	StudentID   uint  `gorm:"not null;index" json:"student_id"`
	ChallengeID *uint `gorm:"index" json:"challenge_id,omitempty"`

	WalletAddress string `gorm:"size:64" json:"wallet_address,omitempty"`
	Amount        int    `gorm:"not null" json:"amount"`
	Reason        string `gorm:"size:200" json:"reason"`

	Status    string `gorm:"not null;size:20;index" json:"status"`
	TxHash    string `gorm:"size:80" json:"tx_hash,omitempty"`
	ClaimCode string `gorm:"size:64" json:"claim_code,omitempty"`
	Error     string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (TokenTransaction) TableName() string {
	return "token_transactions"
}
