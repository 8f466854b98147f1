package businessflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFee_BaseMatrix(t *testing.T) {
	tests := []struct {
		name     string
		category string
		location string
		baseFee  int64
	}{
		{name: "silver municipal", category: CategorySilver, location: LocationMunicipal, baseFee: 6000},
		{name: "silver town", category: CategorySilver, location: LocationTown, baseFee: 4000},
		{name: "silver gram panchayat", category: CategorySilver, location: LocationGramPanchayat, baseFee: 2000},
		{name: "gold municipal", category: CategoryGold, location: LocationMunicipal, baseFee: 12000},
		{name: "gold town", category: CategoryGold, location: LocationTown, baseFee: 8000},
		{name: "gold gram panchayat", category: CategoryGold, location: LocationGramPanchayat, baseFee: 4000},
		{name: "diamond municipal", category: CategoryDiamond, location: LocationMunicipal, baseFee: 24000},
		{name: "diamond town", category: CategoryDiamond, location: LocationTown, baseFee: 16000},
		{name: "diamond gram panchayat", category: CategoryDiamond, location: LocationGramPanchayat, baseFee: 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := ComputeFee(FeeInput{
				Category:      tt.category,
				LocationType:  tt.location,
				ValidityYears: 1,
			})
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(tt.baseFee).Equal(quote.BaseFee))
			assert.True(t, quote.BaseFee.Equal(quote.TotalBeforeDiscounts))
			assert.True(t, quote.BaseFee.Equal(quote.FinalFee))
		})
	}
}

func TestComputeFee_WorkedExample(t *testing.T) {
	quote, err := ComputeFee(FeeInput{
		Category:      CategoryGold,
		LocationType:  LocationMunicipal,
		ValidityYears: 3,
		OwnerIsFemale: true,
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(12000).Equal(quote.BaseFee))
	assert.True(t, decimal.NewFromInt(36000).Equal(quote.TotalBeforeDiscounts))
	assert.True(t, decimal.NewFromInt(3600).Equal(quote.ValidityDiscount))
	assert.True(t, decimal.NewFromInt(1620).Equal(quote.FemaleOwnerDiscount))
	assert.True(t, decimal.Zero.Equal(quote.RemoteAreaDiscount))
	assert.True(t, decimal.NewFromInt(30780).Equal(quote.FinalFee))
}

func TestComputeFee_DiscountsStackOnRemainder(t *testing.T) {
	quote, err := ComputeFee(FeeInput{
		Category:      CategoryGold,
		LocationType:  LocationMunicipal,
		ValidityYears: 3,
		OwnerIsFemale: true,
	})
	require.NoError(t, err)

	// Applying both discounts independently to the original total would give
	// 36000 - 3600 - 1800 = 30600. The remainder-stacked result must differ.
	independent := decimal.NewFromInt(30600)
	assert.False(t, independent.Equal(quote.FinalFee))
	assert.True(t, decimal.NewFromInt(30780).Equal(quote.FinalFee))
}

func TestComputeFee_AllDiscounts(t *testing.T) {
	quote, err := ComputeFee(FeeInput{
		Category:            CategorySilver,
		LocationType:        LocationTown,
		ValidityYears:       3,
		OwnerIsFemale:       true,
		IsRemoteSubdivision: true,
	})
	require.NoError(t, err)

	// 12000 - 1200 = 10800; - 540 = 10260; - 5130 = 5130
	assert.True(t, decimal.NewFromInt(12000).Equal(quote.TotalBeforeDiscounts))
	assert.True(t, decimal.NewFromInt(1200).Equal(quote.ValidityDiscount))
	assert.True(t, decimal.NewFromInt(540).Equal(quote.FemaleOwnerDiscount))
	assert.True(t, decimal.NewFromInt(5130).Equal(quote.RemoteAreaDiscount))
	assert.True(t, decimal.NewFromInt(5130).Equal(quote.FinalFee))
}

func TestComputeFee_FinalFeeNeverExceedsTotal(t *testing.T) {
	categories := []string{CategorySilver, CategoryGold, CategoryDiamond}
	locations := []string{LocationMunicipal, LocationTown, LocationGramPanchayat}
	years := []int{1, 3}
	bools := []bool{false, true}

	for _, cat := range categories {
		for _, loc := range locations {
			for _, y := range years {
				for _, female := range bools {
					for _, remote := range bools {
						quote, err := ComputeFee(FeeInput{
							Category:            cat,
							LocationType:        loc,
							ValidityYears:       y,
							OwnerIsFemale:       female,
							IsRemoteSubdivision: remote,
						})
						require.NoError(t, err)

						assert.True(t, quote.FinalFee.LessThanOrEqual(quote.TotalBeforeDiscounts))
						assert.False(t, quote.ValidityDiscount.IsNegative())
						assert.False(t, quote.FemaleOwnerDiscount.IsNegative())
						assert.False(t, quote.RemoteAreaDiscount.IsNegative())

						sum := quote.ValidityDiscount.
							Add(quote.FemaleOwnerDiscount).
							Add(quote.RemoteAreaDiscount).
							Add(quote.FinalFee)
						assert.True(t, sum.Equal(quote.TotalBeforeDiscounts))
					}
				}
			}
		}
	}
}

func TestComputeFee_InvalidInputs(t *testing.T) {
	tests := []struct {
		name    string
		input   FeeInput
		wantErr error
	}{
		{
			name:    "unknown category",
			input:   FeeInput{Category: "platinum", LocationType: LocationMunicipal, ValidityYears: 1},
			wantErr: ErrUnknownCategory,
		},
		{
			name:    "unknown location",
			input:   FeeInput{Category: CategoryGold, LocationType: "metro", ValidityYears: 1},
			wantErr: ErrUnknownLocationType,
		},
		{
			name:    "two year validity",
			input:   FeeInput{Category: CategoryGold, LocationType: LocationMunicipal, ValidityYears: 2},
			wantErr: ErrInvalidValidity,
		},
		{
			name:    "zero validity",
			input:   FeeInput{Category: CategoryGold, LocationType: LocationMunicipal},
			wantErr: ErrInvalidValidity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeFee(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsInvalidFeeInput(err))
		})
	}
}
