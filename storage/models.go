package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BorrowerRecord persists one trusted borrower.
type BorrowerRecord struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false;column:seq"`
	Addr      string `gorm:"uniqueIndex;size:128"`
	Ceiling   string `gorm:"size:80"`
	Used      string `gorm:"size:80"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VaultRecord persists one trusted capital provider.
type VaultRecord struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false;column:seq"`
	Addr      string `gorm:"uniqueIndex;size:128"`
	Asset     string `gorm:"size:16"`
	MinPct    uint32
	MaxPct    uint32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LoanRecord persists one credit line.
type LoanRecord struct {
	Seq             uint64 `gorm:"primaryKey;autoIncrement:false;column:seq"`
	Borrower        string `gorm:"index;size:128"`
	Requested       string `gorm:"size:80"`
	Ceiling         string `gorm:"size:80"`
	Remaining       string `gorm:"size:80"`
	RateTier        uint32
	NormalizedDrawn string `gorm:"size:80"`
	Status          uint8  `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DebtRecord persists one draw against a loan.
type DebtRecord struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement:false;column:seq"`
	LoanSeq    uint64 `gorm:"index;column:loan_seq"`
	Borrower   string `gorm:"index;size:128"`
	Principal  string `gorm:"size:80"`
	Normalized string `gorm:"size:80"`
	RateTier   uint32
	Start      int64
	Maturity   int64
	Status     uint8 `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TrancheRecord persists the portion of one debt funded by one vault.
type TrancheRecord struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement:false;column:seq"`
	VaultSeq   uint64 `gorm:"index;column:vault_seq"`
	DebtSeq    uint64 `gorm:"index;column:debt_seq"`
	Normalized string `gorm:"size:80"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RateStateRecord is a singleton row holding the tier table and its
// accumulators. Both slices are stored as comma-joined decimals.
type RateStateRecord struct {
	ID           uint8  `gorm:"primaryKey"`
	Tiers        string `gorm:"type:text"`
	Accumulators string `gorm:"type:text"`
	LastAccrual  int64
	UpdatedAt    time.Time
}

// AuditEntry is the append-only mutation trail.
type AuditEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Entity    string    `gorm:"size:32;index"`
	EntitySeq uint64    `gorm:"column:entity_seq"`
	Action    string    `gorm:"size:32"`
	Details   string    `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the ledger store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BorrowerRecord{},
		&VaultRecord{},
		&LoanRecord{},
		&DebtRecord{},
		&TrancheRecord{},
		&RateStateRecord{},
		&AccountRecord{},
		&AuditEntry{},
	)
}
