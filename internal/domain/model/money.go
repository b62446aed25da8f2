package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// 通貨はザンビア・クワチャのみ
const CurrencyZMW = "ZMW"

// 金額。Amountは整数のクワチャ単位。
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func Kwacha(amount int64) Money {
	return Money{Amount: amount, Currency: CurrencyZMW}
}

// 価格文字列が読めなかったときのエラー
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse price %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNoDigits = errors.New("no digits")

// ParsePriceは"K1,250"のような表示価格をMoneyにする。
// 数字と"."以外は捨てる。小数は四捨五入。読めない場合は0とParseErrorを返す。
func ParsePrice(raw string) (Money, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return Kwacha(0), &ParseError{Input: raw, Err: errNoDigits}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Kwacha(0), &ParseError{Input: raw, Err: err}
	}
	return Kwacha(d.Round(0).IntPart()), nil
}

// FormatCurrencyは"K"+3桁区切り（小数なし）。
func FormatCurrency(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}

	if neg {
		return "-K" + b.String()
	}
	return "K" + b.String()
}

func (m Money) String() string {
	return FormatCurrency(m.Amount)
}
