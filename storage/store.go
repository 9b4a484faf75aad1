package storage

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"creditpool/native/credit"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("storage: database path must be configured")

const rateStateID = 1

// Store is the sqlite-backed ledger state. It satisfies credit.EngineState
// and records an audit row for every mutation.
type Store struct {
	db *gorm.DB
}

// Open initialises the backing store at the given sqlite DSN.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory returns a throwaway store for tests. Each call gets its own
// named in-memory database so parallel tests do not share state.
func OpenInMemory() (*Store, error) {
	return Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the underlying handle for service-level queries.
func (s *Store) DB() *gorm.DB { return s.db }

// Transact runs fn against a store view bound to a single database
// transaction. All writes made through the view, transfers included, commit
// together or roll back when fn returns an error.
func (s *Store) Transact(fn func(credit.EngineState) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) upsert(value any) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "seq"}},
		UpdateAll: true,
	}).Create(value).Error
}

func (s *Store) audit(entity string, seq uint64, action, details string) {
	entry := AuditEntry{
		ID:        uuid.New(),
		Entity:    entity,
		EntitySeq: seq,
		Action:    action,
		Details:   details,
	}
	s.db.Create(&entry)
}

// RateState loads the singleton accumulator row.
func (s *Store) RateState() (*credit.RateState, error) {
	var rec RateStateRecord
	if err := s.db.First(&rec, "id = ?", rateStateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	tiers, err := decodeU256Slice(rec.Tiers)
	if err != nil {
		return nil, fmt.Errorf("storage: rate tiers: %w", err)
	}
	accumulated, err := decodeU256Slice(rec.Accumulators)
	if err != nil {
		return nil, fmt.Errorf("storage: accumulators: %w", err)
	}
	if len(tiers) != len(accumulated) {
		return nil, fmt.Errorf("storage: tier and accumulator arity mismatch")
	}
	return &credit.RateState{Tiers: tiers, Accumulated: accumulated, LastAccrual: rec.LastAccrual}, nil
}

// PutRateState persists the accumulator row, creating it on first write.
func (s *Store) PutRateState(rs *credit.RateState) error {
	if rs == nil {
		return fmt.Errorf("storage: nil rate state")
	}
	rec := RateStateRecord{
		ID:           rateStateID,
		Tiers:        encodeU256Slice(rs.Tiers),
		Accumulators: encodeU256Slice(rs.Accumulated),
		LastAccrual:  rs.LastAccrual,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return err
	}
	s.audit("rates", 0, "refresh", fmt.Sprintf("last_accrual=%d", rs.LastAccrual))
	return nil
}

func (s *Store) BorrowerCount() (uint64, error) { return s.count(&BorrowerRecord{}) }

func (s *Store) BorrowerByIndex(index uint64) (*credit.Borrower, error) {
	var rec BorrowerRecord
	if err := s.db.First(&rec, "seq = ?", index).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeBorrower(&rec)
}

func (s *Store) BorrowerByAddr(addr string) (*credit.Borrower, error) {
	var rec BorrowerRecord
	if err := s.db.First(&rec, "addr = ?", addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeBorrower(&rec)
}

func (s *Store) PutBorrower(b *credit.Borrower) error {
	if b == nil {
		return fmt.Errorf("storage: nil borrower")
	}
	rec := BorrowerRecord{
		Seq:     b.Index,
		Addr:    b.Addr,
		Ceiling: encodeAmount(b.Ceiling),
		Used:    encodeAmount(b.Used),
	}
	if err := s.upsert(&rec); err != nil {
		return err
	}
	s.audit("borrower", b.Index, "put", fmt.Sprintf("addr=%s ceiling=%s used=%s", b.Addr, rec.Ceiling, rec.Used))
	return nil
}

func (s *Store) VaultCount() (uint64, error) { return s.count(&VaultRecord{}) }

func (s *Store) VaultByIndex(index uint64) (*credit.Vault, error) {
	var rec VaultRecord
	if err := s.db.First(&rec, "seq = ?", index).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeVault(&rec), nil
}

func (s *Store) VaultByAddr(addr string) (*credit.Vault, error) {
	var rec VaultRecord
	if err := s.db.First(&rec, "addr = ?", addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeVault(&rec), nil
}

func (s *Store) PutVault(v *credit.Vault) error {
	if v == nil {
		return fmt.Errorf("storage: nil vault")
	}
	rec := VaultRecord{
		Seq:    v.Index,
		Addr:   v.Addr,
		Asset:  v.Asset,
		MinPct: v.MinPct,
		MaxPct: v.MaxPct,
	}
	if err := s.upsert(&rec); err != nil {
		return err
	}
	s.audit("vault", v.Index, "put", fmt.Sprintf("addr=%s bounds=%d..%d", v.Addr, v.MinPct, v.MaxPct))
	return nil
}

func (s *Store) LoanCount() (uint64, error) { return s.count(&LoanRecord{}) }

func (s *Store) LoanByIndex(index uint64) (*credit.Loan, error) {
	var rec LoanRecord
	if err := s.db.First(&rec, "seq = ?", index).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeLoan(&rec)
}

func (s *Store) PutLoan(l *credit.Loan) error {
	if l == nil {
		return fmt.Errorf("storage: nil loan")
	}
	rec := LoanRecord{
		Seq:             l.Index,
		Borrower:        l.Borrower,
		Requested:       encodeAmount(l.Requested),
		Ceiling:         encodeAmount(l.Ceiling),
		Remaining:       encodeAmount(l.Remaining),
		RateTier:        l.RateTier,
		NormalizedDrawn: encodeAmount(l.NormalizedDrawn),
		Status:          uint8(l.Status),
	}
	if err := s.upsert(&rec); err != nil {
		return err
	}
	s.audit("loan", l.Index, "put", fmt.Sprintf("borrower=%s status=%d remaining=%s", l.Borrower, l.Status, rec.Remaining))
	return nil
}

func (s *Store) LoansByBorrower(addr string) ([]*credit.Loan, error) {
	var recs []LoanRecord
	if err := s.db.Where("borrower = ?", addr).Order("seq").Find(&recs).Error; err != nil {
		return nil, err
	}
	loans := make([]*credit.Loan, 0, len(recs))
	for i := range recs {
		loan, err := decodeLoan(&recs[i])
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

func (s *Store) DebtCount() (uint64, error) { return s.count(&DebtRecord{}) }

func (s *Store) DebtByIndex(index uint64) (*credit.Debt, error) {
	var rec DebtRecord
	if err := s.db.First(&rec, "seq = ?", index).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeDebt(&rec)
}

func (s *Store) PutDebt(d *credit.Debt) error {
	if d == nil {
		return fmt.Errorf("storage: nil debt")
	}
	rec := DebtRecord{
		Seq:        d.Index,
		LoanSeq:    d.Loan,
		Borrower:   d.Borrower,
		Principal:  encodeAmount(d.Principal),
		Normalized: encodeAmount(d.Normalized),
		RateTier:   d.RateTier,
		Start:      d.Start,
		Maturity:   d.Maturity,
		Status:     uint8(d.Status),
	}
	if err := s.upsert(&rec); err != nil {
		return err
	}
	s.audit("debt", d.Index, "put", fmt.Sprintf("loan=%d status=%d principal=%s", d.Loan, d.Status, rec.Principal))
	return nil
}

func (s *Store) DebtsByLoan(loan uint64) ([]*credit.Debt, error) {
	var recs []DebtRecord
	if err := s.db.Where("loan_seq = ?", loan).Order("seq").Find(&recs).Error; err != nil {
		return nil, err
	}
	return decodeDebts(recs)
}

func (s *Store) DebtsByBorrower(addr string) ([]*credit.Debt, error) {
	var recs []DebtRecord
	if err := s.db.Where("borrower = ?", addr).Order("seq").Find(&recs).Error; err != nil {
		return nil, err
	}
	return decodeDebts(recs)
}

func (s *Store) TrancheCount() (uint64, error) { return s.count(&TrancheRecord{}) }

func (s *Store) TrancheByIndex(index uint64) (*credit.Tranche, error) {
	var rec TrancheRecord
	if err := s.db.First(&rec, "seq = ?", index).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeTranche(&rec)
}

func (s *Store) PutTranche(t *credit.Tranche) error {
	if t == nil {
		return fmt.Errorf("storage: nil tranche")
	}
	rec := TrancheRecord{
		Seq:        t.Index,
		VaultSeq:   t.Vault,
		DebtSeq:    t.Debt,
		Normalized: encodeAmount(t.Normalized),
	}
	if err := s.upsert(&rec); err != nil {
		return err
	}
	s.audit("tranche", t.Index, "put", fmt.Sprintf("vault=%d debt=%d normalized=%s", t.Vault, t.Debt, rec.Normalized))
	return nil
}

func (s *Store) TranchesByDebt(debt uint64) ([]*credit.Tranche, error) {
	var recs []TrancheRecord
	if err := s.db.Where("debt_seq = ?", debt).Order("seq").Find(&recs).Error; err != nil {
		return nil, err
	}
	return decodeTranches(recs)
}

func (s *Store) TranchesByVault(vault uint64) ([]*credit.Tranche, error) {
	var recs []TrancheRecord
	if err := s.db.Where("vault_seq = ?", vault).Order("seq").Find(&recs).Error; err != nil {
		return nil, err
	}
	return decodeTranches(recs)
}

// AuditTrail returns the most recent audit entries for an entity kind,
// newest first.
func (s *Store) AuditTrail(entity string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []AuditEntry
	query := s.db.Order("created_at DESC").Limit(limit)
	if strings.TrimSpace(entity) != "" {
		query = query.Where("entity = ?", entity)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) count(model any) (uint64, error) {
	var n int64
	if err := s.db.Model(model).Count(&n).Error; err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func decodeBorrower(rec *BorrowerRecord) (*credit.Borrower, error) {
	ceiling, err := decodeAmount(rec.Ceiling)
	if err != nil {
		return nil, fmt.Errorf("storage: borrower %d ceiling: %w", rec.Seq, err)
	}
	used, err := decodeAmount(rec.Used)
	if err != nil {
		return nil, fmt.Errorf("storage: borrower %d used: %w", rec.Seq, err)
	}
	return &credit.Borrower{Index: rec.Seq, Addr: rec.Addr, Ceiling: ceiling, Used: used}, nil
}

func decodeVault(rec *VaultRecord) *credit.Vault {
	return &credit.Vault{Index: rec.Seq, Addr: rec.Addr, Asset: rec.Asset, MinPct: rec.MinPct, MaxPct: rec.MaxPct}
}

func decodeLoan(rec *LoanRecord) (*credit.Loan, error) {
	requested, err := decodeAmount(rec.Requested)
	if err != nil {
		return nil, fmt.Errorf("storage: loan %d requested: %w", rec.Seq, err)
	}
	ceiling, err := decodeAmount(rec.Ceiling)
	if err != nil {
		return nil, fmt.Errorf("storage: loan %d ceiling: %w", rec.Seq, err)
	}
	remaining, err := decodeAmount(rec.Remaining)
	if err != nil {
		return nil, fmt.Errorf("storage: loan %d remaining: %w", rec.Seq, err)
	}
	drawn, err := decodeAmount(rec.NormalizedDrawn)
	if err != nil {
		return nil, fmt.Errorf("storage: loan %d normalized drawn: %w", rec.Seq, err)
	}
	return &credit.Loan{
		Index:           rec.Seq,
		Borrower:        rec.Borrower,
		Requested:       requested,
		Ceiling:         ceiling,
		Remaining:       remaining,
		RateTier:        rec.RateTier,
		NormalizedDrawn: drawn,
		Status:          credit.LoanStatus(rec.Status),
	}, nil
}

func decodeDebt(rec *DebtRecord) (*credit.Debt, error) {
	principal, err := decodeAmount(rec.Principal)
	if err != nil {
		return nil, fmt.Errorf("storage: debt %d principal: %w", rec.Seq, err)
	}
	normalized, err := decodeAmount(rec.Normalized)
	if err != nil {
		return nil, fmt.Errorf("storage: debt %d normalized: %w", rec.Seq, err)
	}
	return &credit.Debt{
		Index:      rec.Seq,
		Loan:       rec.LoanSeq,
		Borrower:   rec.Borrower,
		Principal:  principal,
		Normalized: normalized,
		RateTier:   rec.RateTier,
		Start:      rec.Start,
		Maturity:   rec.Maturity,
		Status:     credit.DebtStatus(rec.Status),
	}, nil
}

func decodeDebts(recs []DebtRecord) ([]*credit.Debt, error) {
	debts := make([]*credit.Debt, 0, len(recs))
	for i := range recs {
		debt, err := decodeDebt(&recs[i])
		if err != nil {
			return nil, err
		}
		debts = append(debts, debt)
	}
	return debts, nil
}

func decodeTranche(rec *TrancheRecord) (*credit.Tranche, error) {
	normalized, err := decodeAmount(rec.Normalized)
	if err != nil {
		return nil, fmt.Errorf("storage: tranche %d normalized: %w", rec.Seq, err)
	}
	return &credit.Tranche{Index: rec.Seq, Vault: rec.VaultSeq, Debt: rec.DebtSeq, Normalized: normalized}, nil
}

func decodeTranches(recs []TrancheRecord) ([]*credit.Tranche, error) {
	tranches := make([]*credit.Tranche, 0, len(recs))
	for i := range recs {
		tranche, err := decodeTranche(&recs[i])
		if err != nil {
			return nil, err
		}
		tranches = append(tranches, tranche)
	}
	return tranches, nil
}

func encodeAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

func encodeU256Slice(values []*uint256.Int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = "0"
			continue
		}
		parts[i] = v.Dec()
	}
	return strings.Join(parts, ",")
}

func decodeU256Slice(raw string) ([]*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty value list")
	}
	parts := strings.Split(trimmed, ",")
	values := make([]*uint256.Int, len(parts))
	for i, part := range parts {
		value, err := uint256.FromDecimal(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		values[i] = value
	}
	return values, nil
}
