// Package danfe parses the 44-digit NF-e access key printed as a Code128
// barcode on a DANFE.
package danfe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// KeyLength is the number of digits in an access key.
const KeyLength = 44

var (
	ErrLength     = errors.New("danfe: access key must have 44 digits")
	ErrNotNumeric = errors.New("danfe: access key must be numeric")
	ErrCheckDigit = errors.New("danfe: check digit mismatch")
	ErrState      = errors.New("danfe: unknown state code")
)

// states maps IBGE state codes to their abbreviations.
var states = map[int]string{
	11: "RO", 12: "AC", 13: "AM", 14: "RR", 15: "PA", 16: "AP", 17: "TO",
	21: "MA", 22: "PI", 23: "CE", 24: "RN", 25: "PB", 26: "PE", 27: "AL", 28: "SE", 29: "BA",
	31: "MG", 32: "ES", 33: "RJ", 35: "SP",
	41: "PR", 42: "SC", 43: "RS",
	50: "MS", 51: "MT", 52: "GO", 53: "DF",
}

// AccessKey is a validated NF-e access key.
type AccessKey struct {
	Digits       string
	StateCode    int
	State        string
	Year         int // four digits
	Month        int
	CNPJ         string
	Model        string // "55" for NF-e, "65" for NFC-e
	Series       int
	Number       int
	EmissionType int
	NumericCode  string
	CheckDigit   int
}

// Parse validates text as an access key. Spaces are ignored, since DANFEs
// print the key in groups of four.
func Parse(text string) (*AccessKey, error) {
	digits := strings.Join(strings.Fields(text), "")
	if len(digits) != KeyLength {
		return nil, fmt.Errorf("%w: got %d", ErrLength, len(digits))
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, ErrNotNumeric
		}
	}

	want := CheckDigit(digits[:KeyLength-1])
	got := int(digits[KeyLength-1] - '0')
	if got != want {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrCheckDigit, want, got)
	}

	k := &AccessKey{
		Digits:       digits,
		StateCode:    atoi(digits[0:2]),
		Year:         2000 + atoi(digits[2:4]),
		Month:        atoi(digits[4:6]),
		CNPJ:         digits[6:20],
		Model:        digits[20:22],
		Series:       atoi(digits[22:25]),
		Number:       atoi(digits[25:34]),
		EmissionType: atoi(digits[34:35]),
		NumericCode:  digits[35:43],
		CheckDigit:   got,
	}
	state, ok := states[k.StateCode]
	if !ok {
		return nil, fmt.Errorf("%w: %02d", ErrState, k.StateCode)
	}
	k.State = state
	if k.Month < 1 || k.Month > 12 {
		return nil, fmt.Errorf("danfe: invalid emission month %02d", k.Month)
	}
	return k, nil
}

// IsAccessKey reports whether text parses as an access key.
func IsAccessKey(text string) bool {
	_, err := Parse(text)
	return err == nil
}

// CheckDigit computes the modulo-11 check digit of the first 43 digits of
// a key. Weights 2 to 9 are applied cyclically from the rightmost digit.
// Remainders 0 and 1 yield 0.
func CheckDigit(body string) int {
	sum, weight := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

// Formatted returns the key in the space-separated groups printed on a
// DANFE.
func (k *AccessKey) Formatted() string {
	var b strings.Builder
	for i := 0; i < len(k.Digits); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k.Digits[i:min(i+4, len(k.Digits))])
	}
	return b.String()
}

func (k *AccessKey) String() string {
	return fmt.Sprintf("NF-e %s %02d/%d CNPJ %s mod %s serie %d numero %d",
		k.State, k.Month, k.Year, k.CNPJ, k.Model, k.Series, k.Number)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
