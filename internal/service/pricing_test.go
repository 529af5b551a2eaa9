package service_test

import (
	"testing"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/ds124wfegd/travel-booking/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotalPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		adults   int
		children int
		want     string
	}{
		{"two adults one child", "1000000", 2, 1, "2700000"},
		{"single adult", "1500000", 1, 0, "1500000"},
		{"fractional child share", "999.99", 1, 3, "3099.969"},
		{"child share of cents", "10.05", 1, 1, "17.085"},
		{"free tour", "0", 4, 2, "0"},
		{"many children", "100", 1, 10, "800"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := decimal.RequireFromString(tt.price)

			got, err := service.ComputeTotalPrice(price, tt.adults, tt.children)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)

			// детерминированность
			again, err := service.ComputeTotalPrice(price, tt.adults, tt.children)
			require.NoError(t, err)
			assert.True(t, got.Equal(again))
		})
	}
}

func TestComputeTotalPrice_InvalidArguments(t *testing.T) {
	tests := []struct {
		name     string
		price    decimal.Decimal
		adults   int
		children int
		wantErr  error
	}{
		{"no adults", decimal.NewFromInt(100), 0, 1, entity.ErrInvalidAdults},
		{"negative children", decimal.NewFromInt(100), 1, -1, entity.ErrInvalidChildren},
		{"negative price", decimal.NewFromInt(-1), 1, 0, entity.ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ComputeTotalPrice(tt.price, tt.adults, tt.children)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, entity.ErrValidation)
		})
	}
}
