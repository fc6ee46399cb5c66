package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountFromParameters reads the action's monetary amount from its parameters.
// It returns nil when the action has no amount field or the value is absent or unparsable.
func AmountFromParameters(action ActionType, params map[string]any) *decimal.Decimal {
	kind, ok := action.Kind()
	if !ok || kind.AmountField == "" || params == nil {
		return nil
	}
	raw, ok := params[kind.AmountField]
	if !ok || raw == nil {
		return nil
	}
	d, err := toDecimal(raw)
	if err != nil {
		return nil
	}
	return &d
}

// CurrencyFromParameters returns the "currency" parameter, if it is a string.
func CurrencyFromParameters(params map[string]any) string {
	if c, ok := params["currency"].(string); ok {
		return c
	}
	return ""
}

// EstimatedImpact builds the approval preview for an action, or nil when it has no amount.
func EstimatedImpact(action ActionType, params map[string]any) *FinancialImpact {
	amount := AmountFromParameters(action, params)
	if amount == nil {
		return nil
	}
	impact := &FinancialImpact{
		Amount:    *amount,
		Currency:  CurrencyFromParameters(params),
		Direction: DirectionNone,
	}
	if accounts, ok := params["accounts"].([]any); ok {
		for _, a := range accounts {
			if s, ok := a.(string); ok {
				impact.AccountsAffected = append(impact.AccountsAffected, s)
			}
		}
	}
	return impact
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case float32:
		return decimal.NewFromFloat32(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return decimal.NewFromString(t)
	}
	return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
}
