package payment

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

var (
	cardNumberPattern  = regexp.MustCompile(`^\d{16}$`)
	expiryMonthPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
	expiryYearPattern  = regexp.MustCompile(`^\d{4}$`)
	cvvPattern         = regexp.MustCompile(`^\d{3}$`)
)

// Типы карт по префиксу номера.
const (
	CardTypeVisa       = "Visa"
	CardTypeMasterCard = "MasterCard"
	CardTypeAmex       = "American Express"
	CardTypeDiscover   = "Discover"
	CardTypeUnknown    = "Unknown"
)

// CardCheck — результат проверки формата карты без списания.
type CardCheck struct {
	Valid    bool
	CardType string
	Message  string
}

// ValidateCardDetails проверяет формат реквизитов и срок действия на момент now.
func ValidateCardDetails(card domain.CardDetails, now time.Time) error {
	if !cardNumberPattern.MatchString(card.Number) {
		return domain.NewPaymentError(domain.ErrInvalidCard, "", "Invalid card number")
	}
	if !expiryMonthPattern.MatchString(card.ExpiryMonth) || !expiryYearPattern.MatchString(card.ExpiryYear) {
		return domain.NewPaymentError(domain.ErrInvalidCard, "", "Invalid expiry date")
	}
	if !cvvPattern.MatchString(card.CVV) {
		return domain.NewPaymentError(domain.ErrInvalidCard, "", "Invalid CVV")
	}

	month, _ := strconv.Atoi(card.ExpiryMonth)
	year, _ := strconv.Atoi(card.ExpiryYear)
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return domain.NewPaymentError(domain.ErrInvalidCard, "", "Card has expired")
	}
	return nil
}

// ValidateCard проверяет только формат реквизитов и определяет тип карты.
func ValidateCard(card domain.CardDetails) CardCheck {
	valid := cardNumberPattern.MatchString(card.Number) &&
		expiryMonthPattern.MatchString(card.ExpiryMonth) &&
		expiryYearPattern.MatchString(card.ExpiryYear) &&
		cvvPattern.MatchString(card.CVV)

	check := CardCheck{Valid: valid, CardType: DetectCardType(card.Number), Message: "Invalid card details"}
	if valid {
		check.Message = "Card details are valid"
	}
	return check
}

// VerifyUPI проверяет UPI идентификатор: ровно один "@", без пробелов, обе части непустые.
func VerifyUPI(id string) error {
	local, handle, found := strings.Cut(id, "@")
	if !found || local == "" || handle == "" || strings.Contains(handle, "@") || strings.ContainsAny(id, " \t\r\n") {
		return domain.NewPaymentError(domain.ErrInvalidUpi, "", "Invalid UPI ID: "+id)
	}
	return nil
}

// DetectCardType определяет платёжную систему по первым цифрам номера.
func DetectCardType(number string) string {
	if len(number) < 2 {
		return CardTypeUnknown
	}
	switch number[0] {
	case '4':
		return CardTypeVisa
	case '5':
		return CardTypeMasterCard
	case '3':
		if number[:2] == "34" || number[:2] == "37" {
			return CardTypeAmex
		}
		return CardTypeUnknown
	case '6':
		return CardTypeDiscover
	default:
		return CardTypeUnknown
	}
}
