package credit

import (
	"errors"
	"math/big"
	"testing"
)

func TestJoinRegistersOnce(t *testing.T) {
	env := newTestEnv(4)

	borrower, err := env.engine.Join(borrowerAddr)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if borrower.Ceiling.Sign() != 0 || borrower.Used.Sign() != 0 {
		t.Fatalf("fresh borrower must start with zero ceiling and usage")
	}

	if _, err := env.engine.Join(borrowerAddr); !errors.Is(err, ErrBorrowerExists) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := env.engine.Join("  " + borrowerAddr + "  "); !errors.Is(err, ErrBorrowerExists) {
		t.Fatalf("whitespace must not mint a second identity, got %v", err)
	}
	if _, err := env.engine.Join("   "); !errors.Is(err, ErrZeroIdentity) {
		t.Fatalf("expected zero identity rejection, got %v", err)
	}
}

func TestJoinRespectsEligibility(t *testing.T) {
	env := newTestEnv(4)
	env.eligibility.excluded[borrowerAddr] = true
	if _, err := env.engine.Join(borrowerAddr); err == nil {
		t.Fatalf("excluded caller must not join")
	}
	env.eligibility.excluded[borrowerAddr] = false
	env.eligibility.denied[borrowerAddr] = true
	if _, err := env.engine.Join(borrowerAddr); err == nil {
		t.Fatalf("ineligible caller must not join")
	}
}

func TestAgreeSetsCeilingOnce(t *testing.T) {
	env := newTestEnv(4)
	if _, err := env.engine.Join(borrowerAddr); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := env.engine.Agree(borrowerAddr, borrowerAddr, big.NewInt(1_000)); err == nil {
		t.Fatalf("non-operator must not set ceilings")
	}
	if err := env.engine.Agree(operatorAddr, borrowerAddr, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero ceiling must be rejected, got %v", err)
	}
	if err := env.engine.Agree(operatorAddr, "stranger", big.NewInt(1_000)); !errors.Is(err, ErrNotTrustedBorrower) {
		t.Fatalf("unknown borrower must be rejected, got %v", err)
	}

	if err := env.engine.Agree(operatorAddr, borrowerAddr, big.NewInt(1_000)); err != nil {
		t.Fatalf("agree: %v", err)
	}
	if err := env.engine.Agree(operatorAddr, borrowerAddr, big.NewInt(2_000)); !errors.Is(err, ErrUpdateCeilingDirect) {
		t.Fatalf("second agree must point at the limit update, got %v", err)
	}

	borrower, err := env.engine.BorrowerByAddr(borrowerAddr)
	if err != nil {
		t.Fatalf("borrower: %v", err)
	}
	if borrower.Ceiling.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected ceiling: %s", borrower.Ceiling)
	}
}

func TestUpdateBorrowerLimit(t *testing.T) {
	env := newTestEnv(4)
	if err := env.addVault(vaultAddr, 1_000_000, 0, ppmScale); err != nil {
		t.Fatalf("add vault: %v", err)
	}
	if err := env.joinAndAgree(borrowerAddr, 1_000_000); err != nil {
		t.Fatalf("join and agree: %v", err)
	}
	loan, err := env.engine.Request(borrowerAddr, big.NewInt(500_000))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := env.engine.Approve(operatorAddr, loan.Index, big.NewInt(500_000), 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.engine.Borrow(borrowerAddr, loan.Index, big.NewInt(300_000), env.clock.now+30*secondsPerDay); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Below the drawn principal.
	if err := env.engine.UpdateBorrowerLimit(operatorAddr, borrowerAddr, big.NewInt(200_000)); !errors.Is(err, ErrCeilingBelowUsed) {
		t.Fatalf("expected drawn principal guard, got %v", err)
	}
	// Above drawn principal but below the committed reservation.
	if err := env.engine.UpdateBorrowerLimit(operatorAddr, borrowerAddr, big.NewInt(400_000)); !errors.Is(err, ErrCeilingBelowReserved) {
		t.Fatalf("expected reservation guard, got %v", err)
	}
	// Raising is always allowed.
	if err := env.engine.UpdateBorrowerLimit(operatorAddr, borrowerAddr, big.NewInt(2_000_000)); err != nil {
		t.Fatalf("raise limit: %v", err)
	}
	// Shrinking down to the reservation is allowed.
	if err := env.engine.UpdateBorrowerLimit(operatorAddr, borrowerAddr, big.NewInt(500_000)); err != nil {
		t.Fatalf("shrink limit: %v", err)
	}

	borrower, err := env.engine.BorrowerByAddr(borrowerAddr)
	if err != nil {
		t.Fatalf("borrower: %v", err)
	}
	if borrower.Remaining().Sign() != 0 {
		t.Fatalf("unexpected remaining capacity: %s", borrower.Remaining())
	}
}

func TestUpdateTrustedVaultsUpsert(t *testing.T) {
	env := newTestEnv(4)

	overwritten, err := env.engine.UpdateTrustedVaults(operatorAddr, Vault{
		Addr:   vaultAddr,
		Asset:  "USD",
		MinPct: 100_000,
		MaxPct: 600_000,
	}, 0)
	if err != nil {
		t.Fatalf("append vault: %v", err)
	}
	if overwritten {
		t.Fatalf("first registration must append")
	}

	// A matching index hint overwrites in place.
	overwritten, err = env.engine.UpdateTrustedVaults(operatorAddr, Vault{
		Addr:   vaultAddr,
		Asset:  "usd",
		MinPct: 200_000,
		MaxPct: 700_000,
	}, 0)
	if err != nil {
		t.Fatalf("overwrite vault: %v", err)
	}
	if !overwritten {
		t.Fatalf("hint match must overwrite")
	}

	vault, err := env.engine.Vault(0)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.MinPct != 200_000 || vault.MaxPct != 700_000 {
		t.Fatalf("unexpected bounds: %d/%d", vault.MinPct, vault.MaxPct)
	}

	// A stale hint still resolves by address.
	overwritten, err = env.engine.UpdateTrustedVaults(operatorAddr, Vault{
		Addr:   vaultAddr,
		Asset:  "USD",
		MinPct: 300_000,
		MaxPct: 800_000,
	}, 42)
	if err != nil {
		t.Fatalf("overwrite by address: %v", err)
	}
	if !overwritten {
		t.Fatalf("address match must overwrite")
	}

	count, err := env.state.VaultCount()
	if err != nil {
		t.Fatalf("vault count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single vault, got %d", count)
	}
}

func TestUpdateTrustedVaultsRejectsBadEntries(t *testing.T) {
	env := newTestEnv(4)

	if _, err := env.engine.UpdateTrustedVaults(borrowerAddr, Vault{Addr: vaultAddr, Asset: "USD", MaxPct: ppmScale}, 0); err == nil {
		t.Fatalf("non-operator must not register vaults")
	}
	if _, err := env.engine.UpdateTrustedVaults(operatorAddr, Vault{Addr: "  ", Asset: "USD", MaxPct: ppmScale}, 0); !errors.Is(err, ErrZeroIdentity) {
		t.Fatalf("expected zero identity rejection, got %v", err)
	}
	if _, err := env.engine.UpdateTrustedVaults(operatorAddr, Vault{Addr: vaultAddr, Asset: "EUR", MaxPct: ppmScale}, 0); !errors.Is(err, ErrVaultAsset) {
		t.Fatalf("expected asset mismatch, got %v", err)
	}
	if _, err := env.engine.UpdateTrustedVaults(operatorAddr, Vault{Addr: vaultAddr, Asset: "USD", MinPct: 600_000, MaxPct: 500_000}, 0); !errors.Is(err, ErrVaultBounds) {
		t.Fatalf("expected inverted bounds rejection, got %v", err)
	}
	if _, err := env.engine.UpdateTrustedVaults(operatorAddr, Vault{Addr: vaultAddr, Asset: "USD", MaxPct: ppmScale + 1}, 0); !errors.Is(err, ErrVaultBounds) {
		t.Fatalf("expected over-unity bound rejection, got %v", err)
	}
}

func TestAllocatorPrefersUnderMinVaults(t *testing.T) {
	env := newTestEnv(4)
	// Vault one wants at least 80% of the book, vault two has no floor.
	if err := env.addVault(vaultAddr, 1_000_000, 800_000, ppmScale); err != nil {
		t.Fatalf("add vault 1: %v", err)
	}
	if err := env.addVault(vaultAddr2, 1_000_000, 0, ppmScale); err != nil {
		t.Fatalf("add vault 2: %v", err)
	}
	if err := env.joinAndAgree(borrowerAddr, 1_000_000); err != nil {
		t.Fatalf("join and agree: %v", err)
	}
	loan, err := env.engine.Request(borrowerAddr, big.NewInt(500_000))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := env.engine.Approve(operatorAddr, loan.Index, big.NewInt(500_000), 1); err != nil {
		t.Fatalf("approve: %v", err)
	}
	result, err := env.engine.Borrow(borrowerAddr, loan.Index, big.NewInt(300_000), env.clock.now+30*secondsPerDay)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// The under-floor vault soaks up the whole draw.
	tranches, err := env.engine.TranchesOfDebt(result.Debt.Index)
	if err != nil {
		t.Fatalf("tranches: %v", err)
	}
	if len(tranches) != 1 {
		t.Fatalf("expected the under-floor vault to fill alone, got %d tranches", len(tranches))
	}
	vault, err := env.engine.Vault(tranches[0].Vault)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Addr != vaultAddr {
		t.Fatalf("draw sourced from %s, want %s", vault.Addr, vaultAddr)
	}
}
