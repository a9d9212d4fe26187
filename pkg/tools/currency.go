package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const currencyTimeout = 20 * time.Second

// Currency 按实时汇率换算金额（exchangerate-api.com v4）。
type Currency struct {
	opts options
}

// NewCurrency 创建汇率换算工具。
func NewCurrency(opts ...Option) *Currency {
	return &Currency{opts: newOptions("https://api.exchangerate-api.com", opts)}
}

func (t *Currency) Name() string { return "convert_currency" }

func (t *Currency) Description() string {
	return "Convert an amount from one currency to another using current exchange rates."
}

func (t *Currency) Parameters() map[string]any {
	return objectSchema([]string{"amount", "from_currency", "to_currency"}, map[string]any{
		"amount":        map[string]any{"type": "number", "description": "Amount to convert"},
		"from_currency": stringProp(`Source currency code (e.g., "USD", "EUR", "GBP")`),
		"to_currency":   stringProp("Target currency code"),
	})
}

func (t *Currency) Call(ctx context.Context, input string) (string, error) {
	args := gjson.Parse(input)
	// Float() 同时接受数字与数字字符串
	amountField := args.Get("amount")
	from := strings.ToUpper(strings.TrimSpace(args.Get("from_currency").String()))
	to := strings.ToUpper(strings.TrimSpace(args.Get("to_currency").String()))
	if !amountField.Exists() || from == "" || to == "" {
		return "Currency conversion failed: amount, from_currency and to_currency are required", nil
	}
	amount := amountField.Float()

	endpoint := fmt.Sprintf("%s/v4/latest/%s", t.opts.baseURL, url.PathEscape(from))
	data, err := t.opts.fetchJSON(ctx, currencyTimeout, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Sprintf("Currency conversion failed: %v", err), nil
	}

	var rate float64
	if isCurrencyCode(to) {
		rate = gjson.GetBytes(data, "rates."+to).Float()
	}
	if rate == 0 {
		return fmt.Sprintf("Currency %s not found", to), nil
	}

	converted := amount * rate
	return fmt.Sprintf("%s %s = %.2f %s\nExchange rate: 1 %s = %.4f %s",
		strconv.FormatFloat(amount, 'f', -1, 64), from, converted, to,
		from, rate, to,
	), nil
}

// isCurrencyCode 仅接受字母代码，避免把 gjson 路径语法带进查询。
func isCurrencyCode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
