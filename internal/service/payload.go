package service

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Extraction rules, in priority order. Provider payloads place the same
// fact in different spots depending on the event and API version.
var (
	emailPaths      = []string{"user.email", "email", "customer.email"}
	planPaths       = []string{"plan.id", "plan_id", "product.id"}
	receiptPaths    = []string{"id", "receipt_id"}
	membershipPaths = []string{"membership.id"}
	amountPaths     = []string{"total", "subtotal"}
	currencyPaths   = []string{"currency"}
	namePaths       = []string{"user.name", "user.username"}
)

// firstNonEmpty returns the first path in data that holds a non-empty
// scalar. Paths are dot separated keys into nested objects.
func firstNonEmpty(data map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := scalarString(lookup(data, p)); s != "" {
			return s
		}
	}
	return ""
}

// firstAmount returns the first parsable amount among paths, or zero. A
// present zero is a real amount and stops the search.
func firstAmount(data map[string]any, paths ...string) decimal.Decimal {
	for _, p := range paths {
		s := scalarString(lookup(data, p))
		if s == "" {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		return d
	}
	return decimal.Zero
}

func lookup(data map[string]any, path string) any {
	var cur any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}
