package credit

import "math/big"

type allocation struct {
	vault  *Vault
	amount *big.Int
}

// allocateDraw walks the trusted vaults and sources up to the requested
// amount from their available capacity. Vaults currently holding less than
// their minimum target share of projected total system debt are sourced
// first, then the remainder is filled in registration order. Percentage
// bounds are ordering guidance only, never hard per-vault caps, so a draw is
// short only when aggregate capacity is short.
func (e *Engine) allocateDraw(amount *big.Int, rs *RateState) ([]allocation, *big.Int, bool, error) {
	count, err := e.state.VaultCount()
	if err != nil {
		return nil, nil, false, err
	}
	vaults := make([]*Vault, 0, count)
	outstanding := make([]*big.Int, 0, count)
	totalDebt := big.NewInt(0)
	for i := uint64(0); i < count; i++ {
		vault, err := e.state.VaultByIndex(i)
		if err != nil {
			return nil, nil, false, err
		}
		if vault == nil {
			continue
		}
		owed, err := e.vaultOutstanding(vault.Index, rs)
		if err != nil {
			return nil, nil, false, err
		}
		vaults = append(vaults, vault)
		outstanding = append(outstanding, owed)
		totalDebt.Add(totalDebt, owed)
	}
	if len(vaults) == 0 {
		return nil, big.NewInt(0), false, nil
	}

	projected := new(big.Int).Add(totalDebt, amount)
	ppm := new(big.Int).SetUint64(ppmScale)

	// Pass one: vaults whose share of the projected total sits below their
	// minimum target. Pass two: everyone else, registration order.
	order := make([]int, 0, len(vaults))
	deferred := make([]int, 0, len(vaults))
	for i, vault := range vaults {
		lhs := new(big.Int).Mul(outstanding[i], ppm)
		rhs := new(big.Int).Mul(projected, new(big.Int).SetUint64(uint64(vault.MinPct)))
		if lhs.Cmp(rhs) < 0 {
			order = append(order, i)
		} else {
			deferred = append(deferred, i)
		}
	}
	order = append(order, deferred...)

	need := new(big.Int).Set(amount)
	allocations := make([]allocation, 0, len(order))
	for _, i := range order {
		if need.Sign() == 0 {
			break
		}
		capacity, err := e.funding.Balance(vaults[i].Addr)
		if err != nil {
			return nil, nil, false, err
		}
		if capacity == nil || capacity.Sign() <= 0 {
			continue
		}
		take := minAmount(need, capacity)
		allocations = append(allocations, allocation{vault: vaults[i], amount: take})
		need.Sub(need, take)
	}

	sourced := new(big.Int).Sub(amount, need)
	return allocations, sourced, need.Sign() == 0, nil
}

// vaultOutstanding sums the current owed amount across every tranche of the
// vault, valuing each at its parent debt's tier.
func (e *Engine) vaultOutstanding(vaultIndex uint64, rs *RateState) (*big.Int, error) {
	tranches, err := e.state.TranchesByVault(vaultIndex)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, tranche := range tranches {
		if tranche == nil || tranche.Normalized == nil || tranche.Normalized.Sign() == 0 {
			continue
		}
		debt, err := e.state.DebtByIndex(tranche.Debt)
		if err != nil {
			return nil, err
		}
		if debt == nil || !debt.Status.Outstanding() {
			continue
		}
		total.Add(total, owedAmount(tranche.Normalized, rs.Accumulated[debt.RateTier]))
	}
	return total, nil
}
