package credit

import (
	"math/big"
	"testing"
)

// checkReconciliation compares the borrower-side and vault-side views of the
// book. The two sides value tranches independently with ceiling rounding, so
// a small per-tranche drift is tolerated.
func checkReconciliation(t *testing.T, env *testEnv, borrowers, vaults []string) {
	t.Helper()

	borrowerTotal := big.NewInt(0)
	for _, addr := range borrowers {
		total, err := env.engine.TotalDebtOfBorrower(addr)
		if err != nil {
			t.Fatalf("borrower total for %s: %v", addr, err)
		}
		borrowerTotal.Add(borrowerTotal, total)
	}

	vaultTotal := big.NewInt(0)
	for _, addr := range vaults {
		total, err := env.engine.TotalDebtOfVault(addr)
		if err != nil {
			t.Fatalf("vault total for %s: %v", addr, err)
		}
		vaultTotal.Add(vaultTotal, total)
	}

	drift := new(big.Int).Sub(borrowerTotal, vaultTotal)
	drift.Abs(drift)
	if drift.Cmp(big.NewInt(256)) >= 0 {
		t.Fatalf("book out of balance: borrowers %s, vaults %s, drift %s", borrowerTotal, vaultTotal, drift)
	}
}

// checkTrancheSums verifies that every debt's tranches partition its
// normalized principal exactly.
func checkTrancheSums(t *testing.T, env *testEnv) {
	t.Helper()

	count, err := env.state.DebtCount()
	if err != nil {
		t.Fatalf("debt count: %v", err)
	}
	for index := uint64(0); index < count; index++ {
		debt, err := env.engine.Debt(index)
		if err != nil {
			t.Fatalf("debt %d: %v", index, err)
		}
		tranches, err := env.engine.TranchesOfDebt(index)
		if err != nil {
			t.Fatalf("tranches of %d: %v", index, err)
		}
		sum := big.NewInt(0)
		for _, tranche := range tranches {
			if tranche.Normalized.Sign() < 0 {
				t.Fatalf("negative tranche %d", tranche.Index)
			}
			sum.Add(sum, tranche.Normalized)
		}
		if sum.Cmp(debt.Normalized) != 0 {
			t.Fatalf("debt %d: tranche sum %s != normalized %s", index, sum, debt.Normalized)
		}
	}
}

func TestBookStaysBalancedThroughLifecycle(t *testing.T) {
	env := newTestEnv(18)
	borrowers := []string{"inv-borrower-1", "inv-borrower-2"}
	vaults := []string{vaultAddr, vaultAddr2, vaultAddr3}

	if err := env.addVault(vaultAddr, 400_000, 200_000, 800_000); err != nil {
		t.Fatalf("add vault 1: %v", err)
	}
	if err := env.addVault(vaultAddr2, 300_000, 100_000, 600_000); err != nil {
		t.Fatalf("add vault 2: %v", err)
	}
	if err := env.addVault(vaultAddr3, 500_000, 0, ppmScale); err != nil {
		t.Fatalf("add vault 3: %v", err)
	}
	for _, addr := range borrowers {
		if err := env.joinAndAgree(addr, 1_000_000); err != nil {
			t.Fatalf("join %s: %v", addr, err)
		}
	}

	type draw struct {
		borrower string
		request  int64
		amount   int64
		tier     uint32
		days     int64
	}
	draws := []draw{
		{borrowers[0], 500_000, 300_000, 1, 30},
		{borrowers[1], 400_000, 250_000, 3, 60},
		{borrowers[0], 200_000, 120_000, 2, 90},
	}

	debts := make([]uint64, 0, len(draws))
	for _, d := range draws {
		loan, err := env.engine.Request(d.borrower, big.NewInt(d.request))
		if err != nil {
			t.Fatalf("request for %s: %v", d.borrower, err)
		}
		if err := env.engine.Approve(operatorAddr, loan.Index, big.NewInt(d.request), d.tier); err != nil {
			t.Fatalf("approve for %s: %v", d.borrower, err)
		}
		result, err := env.engine.Borrow(d.borrower, loan.Index, big.NewInt(d.amount), env.clock.now+d.days*secondsPerDay)
		if err != nil {
			t.Fatalf("borrow for %s: %v", d.borrower, err)
		}
		debts = append(debts, result.Debt.Index)

		env.clock.Advance(5 * secondsPerDay)
		if _, err := env.engine.Pile(); err != nil {
			t.Fatalf("pile: %v", err)
		}
		checkTrancheSums(t, env)
		checkReconciliation(t, env, borrowers, vaults)
	}

	// Partial repay on the first debt.
	env.funding.set(borrowers[0], 1_000_000)
	if _, err := env.engine.Repay(borrowers[0], debts[0], big.NewInt(150_000)); err != nil {
		t.Fatalf("partial repay: %v", err)
	}
	checkTrancheSums(t, env)
	checkReconciliation(t, env, borrowers, vaults)

	// Let the second debt mature, default it onto the penalty tier and
	// recover most of it.
	env.clock.Advance(60 * secondsPerDay)
	if err := env.engine.Defaulted(operatorAddr, borrowers[1], debts[1], 17); err != nil {
		t.Fatalf("defaulted: %v", err)
	}
	checkTrancheSums(t, env)
	checkReconciliation(t, env, borrowers, vaults)

	env.funding.set(borrowers[1], 1_000_000)
	owed, err := env.engine.OwedAmount(debts[1])
	if err != nil {
		t.Fatalf("owed: %v", err)
	}
	if _, err := env.engine.Recovery(operatorAddr, borrowers[1], debts[1], owed); err != nil {
		t.Fatalf("recovery: %v", err)
	}
	if _, err := env.engine.Close(operatorAddr, borrowers[1], debts[1]); err != nil {
		t.Fatalf("close: %v", err)
	}
	checkTrancheSums(t, env)
	checkReconciliation(t, env, borrowers, vaults)

	// Pay off the first debt entirely.
	if _, err := env.engine.Repay(borrowers[0], debts[0], big.NewInt(500_000)); err != nil {
		t.Fatalf("final repay: %v", err)
	}
	checkTrancheSums(t, env)
	checkReconciliation(t, env, borrowers, vaults)

	settled, err := env.engine.Debt(debts[0])
	if err != nil {
		t.Fatalf("debt: %v", err)
	}
	if settled.Status != DebtRepaid {
		t.Fatalf("unexpected status: %d", settled.Status)
	}
}

func TestOwedAmountNeverDecreasesWithoutPayment(t *testing.T) {
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
	if err := env.engine.Approve(operatorAddr, loan.Index, big.NewInt(500_000), 3); err != nil {
		t.Fatalf("approve: %v", err)
	}
	result, err := env.engine.Borrow(borrowerAddr, loan.Index, big.NewInt(300_000), env.clock.now+365*secondsPerDay)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	prev, err := env.engine.OwedAmount(result.Debt.Index)
	if err != nil {
		t.Fatalf("owed: %v", err)
	}
	if prev.Cmp(big.NewInt(300_000)) < 0 {
		t.Fatalf("owed below principal right after the draw: %s", prev)
	}
	for i := 0; i < 12; i++ {
		env.clock.Advance(10 * secondsPerDay)
		if _, err := env.engine.Pile(); err != nil {
			t.Fatalf("pile: %v", err)
		}
		owed, err := env.engine.OwedAmount(result.Debt.Index)
		if err != nil {
			t.Fatalf("owed: %v", err)
		}
		if owed.Cmp(prev) < 0 {
			t.Fatalf("owed decreased from %s to %s", prev, owed)
		}
		prev = owed
	}
}
