package domain

import "sort"

// Virtual sizes used to estimate the share of fees each party pays.
const (
	DustLimit = 1000

	P2WPKHInputVSize  = 68
	P2WPKHOutputVSize = 31
	// Transaction overhead plus the 2-of-2 P2WSH funding output.
	FundTxBaseVSize = 55
	// One funding input spent with a 2-of-2 witness, a P2WPKH payout and a
	// P2WSH payout locked to the oracle outcome.
	CetVSize = 192
	// One oracle locked CET output spent to a P2WPKH output.
	CetClaimVSize = 125
)

// PartyFundingFee is the fee a party adds on top of its collateral when it
// contributes numInputs P2WPKH inputs. It covers the party inputs and change
// output, half of the funding overhead and half of the settlement fee.
func PartyFundingFee(numInputs int, feeRate uint64) uint64 {
	vsize := uint64(numInputs)*P2WPKHInputVSize + P2WPKHOutputVSize +
		FundTxBaseVSize/2
	return vsize*feeRate + PartySettlementFee(feeRate)
}

// PartySettlementFee is each party share of the CET or refund fee.
func PartySettlementFee(feeRate uint64) uint64 {
	return feeRate * CetVSize / 2
}

// CetClaimFee is the fee of the tx spending a CET output locked to the
// oracle outcome.
func CetClaimFee(feeRate uint64) uint64 {
	return feeRate * CetClaimVSize
}

// PartyChange is the change left to a party, zero when below dust.
func PartyChange(inputsAmount, collateral uint64, numInputs int, feeRate uint64) uint64 {
	required := collateral + PartyFundingFee(numInputs, feeRate)
	if inputsAmount < required+DustLimit {
		return 0
	}
	return inputsAmount - required
}

// SelectCoins picks the largest coins first until they cover amount and the
// funding fee share of the selected inputs.
func SelectCoins(candidates []Utxo, amount, feeRate uint64) ([]Utxo, bool) {
	sorted := append([]Utxo{}, candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})

	selected := make([]Utxo, 0)
	var total uint64
	for _, u := range sorted {
		selected = append(selected, u)
		total += u.Amount
		if total >= amount+PartyFundingFee(len(selected), feeRate) {
			return selected, true
		}
	}
	return nil, false
}
