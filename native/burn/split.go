package burn

import (
	"fmt"

	"predictchain/native/safemath"
)

// Split breaks a gross amount into its burned, fee and net portions.
// Gross == Burn + Fee + Net always holds.
type Split struct {
	Gross uint64
	Burn  uint64
	Fee   uint64
	Net   uint64
}

// BetSplit applies the bet burn rate and platform fee to amount. Both shares
// round down, so any remainder stays with the bettor's net stake.
func BetSplit(amount uint64, burnBps, feeBps uint16) (Split, error) {
	burned, err := safemath.Bps(amount, burnBps)
	if err != nil {
		return Split{}, fmt.Errorf("burn: bet burn: %w", err)
	}
	fee, err := safemath.Bps(amount, feeBps)
	if err != nil {
		return Split{}, fmt.Errorf("burn: bet fee: %w", err)
	}
	deducted, err := safemath.Add(burned, fee)
	if err != nil {
		return Split{}, err
	}
	net, err := safemath.Sub(amount, deducted)
	if err != nil {
		return Split{}, err
	}
	return Split{Gross: amount, Burn: burned, Fee: fee, Net: net}, nil
}

// ClaimSplit applies the claim burn rate to a reward. Claims carry no fee.
func ClaimSplit(reward uint64, burnBps uint16) (Split, error) {
	burned, err := safemath.Bps(reward, burnBps)
	if err != nil {
		return Split{}, fmt.Errorf("burn: claim burn: %w", err)
	}
	net, err := safemath.Sub(reward, burned)
	if err != nil {
		return Split{}, err
	}
	return Split{Gross: reward, Burn: burned, Net: net}, nil
}

// Full burns the whole amount.
func Full(amount uint64) Split {
	return Split{Gross: amount, Burn: amount}
}
