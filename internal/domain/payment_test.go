package domain

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownPaymentMethod(t *testing.T) {
	assert.True(t, KnownPaymentMethod("bank_transfer"))
	assert.True(t, KnownPaymentMethod("wise"))
	assert.False(t, KnownPaymentMethod("barter"))
	assert.False(t, KnownPaymentMethod(""))
	assert.False(t, KnownPaymentMethod("Bank_Transfer"), "codes are case sensitive")
}

func TestPaymentMethodName(t *testing.T) {
	assert.Equal(t, "Bank Transfer", PaymentMethodName("bank_transfer"))
	assert.Equal(t, "mystery", PaymentMethodName("mystery"), "unknown codes fall back to themselves")
}

func TestPaymentMethodCodes(t *testing.T) {
	codes := PaymentMethodCodes()
	require.NotEmpty(t, codes)
	assert.True(t, sort.StringsAreSorted(codes))
	for _, code := range codes {
		assert.True(t, KnownPaymentMethod(code))
	}
}

func TestValidatePaymentMethods(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := ValidatePaymentMethods(nil)
		assert.ErrorIs(t, err, ErrInvalidPaymentMethods)
	})

	t.Run("unknown code rejects the whole set", func(t *testing.T) {
		_, err := ValidatePaymentMethods([]string{"bank_transfer", "barter"})
		assert.ErrorIs(t, err, ErrInvalidPaymentMethods)
	})

	t.Run("duplicates dropped, order preserved", func(t *testing.T) {
		got, err := ValidatePaymentMethods([]string{"wise", "bank_transfer", "wise"})
		require.NoError(t, err)
		assert.Equal(t, []string{"wise", "bank_transfer"}, got)
	})
}
