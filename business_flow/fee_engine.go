package businessflow

import (
	"github.com/shopspring/decimal"
)

// Unit categories and location types recognized by the fee schedule
const (
	CategorySilver  = "silver"
	CategoryGold    = "gold"
	CategoryDiamond = "diamond"

	LocationMunicipal     = "municipal"
	LocationTown          = "town"
	LocationGramPanchayat = "gram-panchayat"
)

// FeeInput is the domain input for a registration fee computation
type FeeInput struct {
	Category            string
	LocationType        string
	ValidityYears       int
	OwnerIsFemale       bool
	IsRemoteSubdivision bool
}

// FeeQuote is the derived fee breakdown. Purely computed, never persisted;
// recomputed whenever the inputs change.
type FeeQuote struct {
	BaseFee              decimal.Decimal
	TotalBeforeDiscounts decimal.Decimal
	ValidityDiscount     decimal.Decimal
	FemaleOwnerDiscount  decimal.Decimal
	RemoteAreaDiscount   decimal.Decimal
	FinalFee             decimal.Decimal
}

// Annual base fee schedule, category by location type, in rupees.
var baseFeeMatrix = map[string]map[string]int64{
	CategorySilver: {
		LocationMunicipal:     6000,
		LocationTown:          4000,
		LocationGramPanchayat: 2000,
	},
	CategoryGold: {
		LocationMunicipal:     12000,
		LocationTown:          8000,
		LocationGramPanchayat: 4000,
	},
	CategoryDiamond: {
		LocationMunicipal:     24000,
		LocationTown:          16000,
		LocationGramPanchayat: 8000,
	},
}

var (
	validityDiscountRate    = decimal.RequireFromString("0.10")
	femaleOwnerDiscountRate = decimal.RequireFromString("0.05")
	remoteAreaDiscountRate  = decimal.RequireFromString("0.50")
)

// ComputeFee computes the payable registration fee.
//
// Discounts stack sequentially, each computed on the running remainder rather
// than the original total: 10% for three-year validity, then 5% for a female
// owner, then 50% for a remote subdivision. The sequence is part of the
// settlement contract.
func ComputeFee(in FeeInput) (*FeeQuote, error) {
	row, ok := baseFeeMatrix[in.Category]
	if !ok {
		return nil, NewBusinessErrorf("INVALID_FEE_INPUT", "unknown category %q", ErrUnknownCategory, in.Category)
	}
	base, ok := row[in.LocationType]
	if !ok {
		return nil, NewBusinessErrorf("INVALID_FEE_INPUT", "unknown location type %q", ErrUnknownLocationType, in.LocationType)
	}
	if in.ValidityYears != 1 && in.ValidityYears != 3 {
		return nil, NewBusinessErrorf("INVALID_FEE_INPUT", "validity of %d years not offered", ErrInvalidValidity, in.ValidityYears)
	}

	baseFee := decimal.NewFromInt(base)
	total := baseFee.Mul(decimal.NewFromInt(int64(in.ValidityYears)))

	quote := &FeeQuote{
		BaseFee:              roundFee(baseFee),
		TotalBeforeDiscounts: roundFee(total),
		ValidityDiscount:     decimal.Zero,
		FemaleOwnerDiscount:  decimal.Zero,
		RemoteAreaDiscount:   decimal.Zero,
	}

	remainder := quote.TotalBeforeDiscounts
	if in.ValidityYears == 3 {
		quote.ValidityDiscount = roundFee(remainder.Mul(validityDiscountRate))
		remainder = remainder.Sub(quote.ValidityDiscount)
	}
	if in.OwnerIsFemale {
		quote.FemaleOwnerDiscount = roundFee(remainder.Mul(femaleOwnerDiscountRate))
		remainder = remainder.Sub(quote.FemaleOwnerDiscount)
	}
	if in.IsRemoteSubdivision {
		quote.RemoteAreaDiscount = roundFee(remainder.Mul(remoteAreaDiscountRate))
		remainder = remainder.Sub(quote.RemoteAreaDiscount)
	}

	quote.FinalFee = roundFee(remainder)
	return quote, nil
}

// roundFee rounds a monetary amount to two decimal places, half away from zero
func roundFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
