package ledger

// consumeFromOrderedGrants draws amount credits from grants, mutating their
// Balance fields in place. grants must already be in consumption order; the
// final element is the debt anchor.
//
// Three passes:
//  1. repay debt: every negative balance is paid toward zero first,
//  2. draw down positive balances in order, accumulating FromPurchased for
//     purchase-typed grants,
//  3. charge any shortfall to the anchor as new debt.
//
// Consumed therefore equals amount whenever grants is non-empty.
func consumeFromOrderedGrants(amount int64, grants []CreditGrant) ConsumeResult {
	remaining := amount

	for i := range grants {
		if remaining <= 0 {
			break
		}
		if grants[i].Balance < 0 {
			pay := min(-grants[i].Balance, remaining)
			grants[i].Balance += pay
			remaining -= pay
		}
	}

	var fromPurchased int64
	for i := range grants {
		if remaining <= 0 {
			break
		}
		if grants[i].Balance > 0 {
			draw := min(grants[i].Balance, remaining)
			grants[i].Balance -= draw
			remaining -= draw
			if grants[i].Type == GrantPurchase {
				fromPurchased += draw
			}
		}
	}

	if remaining > 0 && len(grants) > 0 {
		grants[len(grants)-1].Balance -= remaining
		remaining = 0
	}

	return ConsumeResult{Consumed: amount - remaining, FromPurchased: fromPurchased}
}

// consumptionLess orders grants for drawdown: priority ascending, expiry
// ascending with no-expiry last, createdAt ascending, id as the final
// tiebreak so the order (and with it the debt anchor) is deterministic.
func consumptionLess(a, b CreditGrant) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	switch {
	case a.ExpiresAt == nil && b.ExpiresAt != nil:
		return false
	case a.ExpiresAt != nil && b.ExpiresAt == nil:
		return true
	case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
		return a.ExpiresAt.Before(*b.ExpiresAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
