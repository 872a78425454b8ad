package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

var validationNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

func validCard() domain.CardDetails {
	return domain.CardDetails{
		Number:      "4111111111111111",
		ExpiryMonth: "12",
		ExpiryYear:  "2030",
		CVV:         "123",
		HolderName:  "Test User",
	}
}

func TestValidateCardDetails(t *testing.T) {
	tests := []struct {
		name   string
		mut    func(c *domain.CardDetails)
		reason string
	}{
		{name: "valid"},
		{name: "short number", mut: func(c *domain.CardDetails) { c.Number = "411111111111" }, reason: "Invalid card number"},
		{name: "letters in number", mut: func(c *domain.CardDetails) { c.Number = "41111111111111ab" }, reason: "Invalid card number"},
		{name: "month 13", mut: func(c *domain.CardDetails) { c.ExpiryMonth = "13" }, reason: "Invalid expiry date"},
		{name: "single digit month", mut: func(c *domain.CardDetails) { c.ExpiryMonth = "5" }, reason: "Invalid expiry date"},
		{name: "two digit year", mut: func(c *domain.CardDetails) { c.ExpiryYear = "30" }, reason: "Invalid expiry date"},
		{name: "cvv length", mut: func(c *domain.CardDetails) { c.CVV = "1234" }, reason: "Invalid CVV"},
		{name: "past year", mut: func(c *domain.CardDetails) { c.ExpiryYear = "2025" }, reason: "Card has expired"},
		{name: "past month same year", mut: func(c *domain.CardDetails) { c.ExpiryYear, c.ExpiryMonth = "2026", "05" }, reason: "Card has expired"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			card := validCard()
			if tc.mut != nil {
				tc.mut(&card)
			}
			err := ValidateCardDetails(card, validationNow)
			if tc.reason == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrInvalidCard)
			pe, ok := domain.AsPaymentError(err)
			require.True(t, ok)
			assert.Equal(t, tc.reason, pe.Reason)
			assert.Empty(t, pe.TransactionID)
		})
	}
}

func TestValidateCardDetails_CurrentMonthIsValid(t *testing.T) {
	card := validCard()
	card.ExpiryYear, card.ExpiryMonth = "2026", "06"
	assert.NoError(t, ValidateCardDetails(card, validationNow))
}

func TestVerifyUPI(t *testing.T) {
	valid := []string{"user@bank", "first.last@okicici"}
	invalid := []string{"", "userbank", "@bank", "user@", "us er@bank", "a@b@c"}

	for _, id := range valid {
		assert.NoError(t, VerifyUPI(id), id)
	}
	for _, id := range invalid {
		assert.ErrorIs(t, VerifyUPI(id), domain.ErrInvalidUpi, id)
	}
}

func TestDetectCardType(t *testing.T) {
	cases := map[string]string{
		"4111111111111111": CardTypeVisa,
		"5500000000000004": CardTypeMasterCard,
		"340000000000009":  CardTypeAmex,
		"370000000000002":  CardTypeAmex,
		"3000000000000004": CardTypeUnknown,
		"6011000000000004": CardTypeDiscover,
		"9":                CardTypeUnknown,
		"":                 CardTypeUnknown,
	}
	for number, want := range cases {
		assert.Equal(t, want, DetectCardType(number), number)
	}
}

func TestValidateCard_FormatOnly(t *testing.T) {
	card := validCard()
	card.ExpiryYear = "2000"
	check := ValidateCard(card)
	assert.True(t, check.Valid, "format check ignores expiry")
	assert.Equal(t, CardTypeVisa, check.CardType)

	card.CVV = "1"
	check = ValidateCard(card)
	assert.False(t, check.Valid)
	assert.Equal(t, "Invalid card details", check.Message)
}
