package storage

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRecord tracks the asset balance held by one ledger identity. Vaults
// are funded through deposits; draws and repayments move balances between
// vaults and borrowers.
type AccountRecord struct {
	Addr      string `gorm:"primaryKey;size:128"`
	Balance   string `gorm:"size:80"`
	UpdatedAt time.Time
}

// Balance reports the funds held by the identity. Unknown identities hold
// zero.
func (s *Store) Balance(addr string) (*big.Int, error) {
	var rec AccountRecord
	err := s.db.First(&rec, "addr = ?", strings.TrimSpace(addr)).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return decodeAmount(rec.Balance)
}

// Transfer moves funds between two identities inside one transaction.
func (s *Store) Transfer(from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("storage: transfer amount must be positive")
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	return s.db.Transaction(func(tx *gorm.DB) error {
		source, err := balanceTx(tx, from)
		if err != nil {
			return err
		}
		if source.Cmp(amount) < 0 {
			return fmt.Errorf("storage: insufficient balance for %s", from)
		}
		destination, err := balanceTx(tx, to)
		if err != nil {
			return err
		}
		if err := putBalanceTx(tx, from, new(big.Int).Sub(source, amount)); err != nil {
			return err
		}
		return putBalanceTx(tx, to, new(big.Int).Add(destination, amount))
	})
}

// Deposit credits external funds to an identity.
func (s *Store) Deposit(addr string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("storage: deposit amount must be positive")
	}
	addr = strings.TrimSpace(addr)
	var updated *big.Int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		current, err := balanceTx(tx, addr)
		if err != nil {
			return err
		}
		updated = new(big.Int).Add(current, amount)
		return putBalanceTx(tx, addr, updated)
	})
	if err != nil {
		return nil, err
	}
	s.audit("account", 0, "deposit", fmt.Sprintf("addr=%s amount=%s", addr, amount))
	return updated, nil
}

func balanceTx(tx *gorm.DB, addr string) (*big.Int, error) {
	var rec AccountRecord
	err := tx.First(&rec, "addr = ?", addr).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return decodeAmount(rec.Balance)
}

func putBalanceTx(tx *gorm.DB, addr string, balance *big.Int) error {
	rec := AccountRecord{Addr: addr, Balance: encodeAmount(balance)}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "addr"}},
		UpdateAll: true,
	}).Create(&rec).Error
}
