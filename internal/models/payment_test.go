package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskCardNumber(t *testing.T) {
	t.Run("Plain Digits", func(t *testing.T) {
		assert.Equal(t, "****-****-****-1111", MaskCardNumber("4111111111111111"))
	})

	t.Run("Formatted Input", func(t *testing.T) {
		assert.Equal(t, "****-****-****-4242", MaskCardNumber("4242 4242 4242 4242"))
		assert.Equal(t, "****-****-****-0005", MaskCardNumber("5555-5555-5555-0005"))
	})

	t.Run("Too Short", func(t *testing.T) {
		assert.Equal(t, "****", MaskCardNumber("123"))
		assert.Equal(t, "****", MaskCardNumber(""))
		assert.Equal(t, "****", MaskCardNumber("abc"))
	})
}

func TestMaskAccountNumber(t *testing.T) {
	assert.Equal(t, "****6789", MaskAccountNumber("123456789"))
	assert.Equal(t, "****6789", MaskAccountNumber("6789"))
	assert.Equal(t, "****", MaskAccountNumber("678"))
}

func TestTransactionStatusIsTerminal(t *testing.T) {
	assert.False(t, TransactionInitiated.IsTerminal())
	assert.False(t, TransactionProcessing.IsTerminal())
	assert.True(t, TransactionSuccess.IsTerminal())
	assert.True(t, TransactionFailed.IsTerminal())
	assert.True(t, TransactionCancelled.IsTerminal())
	assert.True(t, TransactionRefunded.IsTerminal())
}

func TestParsePaymentMethod(t *testing.T) {
	method, err := ParsePaymentMethod("Credit_Card")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCreditCard, method)

	_, err = ParsePaymentMethod("cash")
	assert.Error(t, err)
}

func TestJSONMapRoundTrip(t *testing.T) {
	t.Run("Value And Scan", func(t *testing.T) {
		src := JSONMap{"card_number": "****-****-****-1111", "attempts": float64(2)}

		value, err := src.Value()
		require.NoError(t, err)

		var dst JSONMap
		require.NoError(t, dst.Scan(value))
		assert.Equal(t, src, dst)
	})

	t.Run("Nil Value", func(t *testing.T) {
		var m JSONMap
		value, err := m.Value()
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("Scan Nil", func(t *testing.T) {
		m := JSONMap{"stale": true}
		require.NoError(t, m.Scan(nil))
		assert.Nil(t, m)
	})
}
