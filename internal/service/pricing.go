package service

import (
	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/shopspring/decimal"
)

// ChildRate is the share of the adult price charged per child.
var ChildRate = decimal.RequireFromString("0.7")

// ComputeTotalPrice returns price*adults + price*ChildRate*children. The
// result is exact; it is computed once at booking creation and stored.
func ComputeTotalPrice(price decimal.Decimal, adults, children int) (decimal.Decimal, error) {
	if adults < 1 {
		return decimal.Zero, entity.ErrInvalidAdults
	}
	if children < 0 {
		return decimal.Zero, entity.ErrInvalidChildren
	}
	if price.IsNegative() {
		return decimal.Zero, entity.ErrInvalidPrice
	}

	adultTotal := price.Mul(decimal.NewFromInt(int64(adults)))
	childTotal := price.Mul(ChildRate).Mul(decimal.NewFromInt(int64(children)))
	return adultTotal.Add(childTotal), nil
}
