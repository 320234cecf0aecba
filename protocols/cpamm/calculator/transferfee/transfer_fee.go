// Package transferfee mirrors how a token mint with a transfer-fee extension withholds part
// of every transfer, in both directions.
package transferfee

import (
	"github.com/defistate/cpamm-engine/protocols/cpamm/calculator/safemath"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
)

// Config is the active transfer-fee setting of a mint. The zero value charges nothing.
type Config struct {
	BasisPoints uint16 `json:"basisPoints"`
	MaximumFee  uint64 `json:"maximumFee"`
}

// IsZero reports whether transfers through the mint are free.
func (c Config) IsZero() bool {
	return c.BasisPoints == 0
}

// Fee withheld when amount is sent.
func (c Config) Fee(amount uint64) (uint64, error) {
	if c.BasisPoints == 0 || amount == 0 {
		return 0, nil
	}
	raw, err := safemath.MulDivU64(amount, uint64(c.BasisPoints), constants.MaxBasisPoint, safemath.Up)
	if err != nil {
		return 0, err
	}
	return min(raw, c.MaximumFee), nil
}

// InverseFee is the fee that must be added to postFeeAmount so that postFeeAmount arrives.
func (c Config) InverseFee(postFeeAmount uint64) (uint64, error) {
	switch {
	case c.BasisPoints == 0:
		return 0, nil
	case uint64(c.BasisPoints) >= constants.MaxBasisPoint:
		return c.MaximumFee, nil
	case postFeeAmount == 0:
		return 0, nil
	}

	denominator := constants.MaxBasisPoint - uint64(c.BasisPoints)
	rawPreFee, err := safemath.MulDivU64(postFeeAmount, constants.MaxBasisPoint, denominator, safemath.Up)
	if err != nil {
		return 0, err
	}
	fee, err := safemath.Sub(rawPreFee, postFeeAmount)
	if err != nil {
		return 0, err
	}
	return min(fee, c.MaximumFee), nil
}

// Result is an amount together with the transfer fee attributed to it.
type Result struct {
	Amount      uint64
	TransferFee uint64
}

// ExcludedAmount is what arrives when amount is sent.
func (c Config) ExcludedAmount(amount uint64) (Result, error) {
	fee, err := c.Fee(amount)
	if err != nil {
		return Result{}, err
	}
	excluded, err := safemath.Sub(amount, fee)
	if err != nil {
		return Result{}, err
	}
	return Result{Amount: excluded, TransferFee: fee}, nil
}

// IncludedAmount is what must be sent so that amount arrives.
func (c Config) IncludedAmount(amount uint64) (Result, error) {
	if amount == 0 {
		return Result{}, nil
	}
	fee, err := c.InverseFee(amount)
	if err != nil {
		return Result{}, err
	}
	included, err := safemath.Add(amount, fee)
	if err != nil {
		return Result{}, err
	}
	return Result{Amount: included, TransferFee: fee}, nil
}
