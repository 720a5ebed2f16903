package exchange

import (
	"errors"
	"strings"

	"github.com/adshao/go-binance/v2/common"
)

// Exchange error codes (Binance-compatible; MEXC uses the same numbering).
const (
	codeNewOrderRejected    = -2010 // covers insufficient balance and halted symbols
	codeCancelRejected      = -2011
	codeInvalidSymbol       = -1121
	codeFilterFailure       = -1013 // LOT_SIZE / PRICE_FILTER / MIN_NOTIONAL
	codeInvalidQuantity     = -1100
	codePercentPriceFilter  = -4131
	codeTradingNotSupported = -3222
)

// ErrOrderRejected marks an order the exchange acknowledged and then
// settled as REJECTED without any fill.
var ErrOrderRejected = errors.New("order rejected by exchange")

// Fatal reports whether an order error is non-retryable: insufficient
// balance, invalid symbol, trading disabled, precision/notional violation,
// a price-limit violation, or an order the exchange settled as REJECTED.
// Everything else (network, rate limit, ambiguous status) is considered
// transient.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOrderRejected) {
		return true
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeNewOrderRejected, codeCancelRejected, codeInvalidSymbol,
			codeFilterFailure, codeInvalidQuantity, codePercentPriceFilter,
			codeTradingNotSupported:
			return true
		}
		return fatalMessage(apiErr.Message)
	}
	return fatalMessage(err.Error())
}

// PriceLimit reports whether a rejection was caused by a limit price
// outside the exchange's allowed band. The pipeline retries these once as
// a market order.
func PriceLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == codePercentPriceFilter {
		return true
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "PERCENT_PRICE") ||
		strings.Contains(msg, "PRICE_FILTER") ||
		strings.Contains(msg, "LIMIT_MAKER") ||
		strings.Contains(msg, "ORDER PRICE")
}

func fatalMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, frag := range []string{
		"insufficient balance",
		"insufficient funds",
		"invalid symbol",
		"trading is disabled",
		"trading disabled",
		"market is closed",
		"notional",
		"lot_size",
		"precision",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
