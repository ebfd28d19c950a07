package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Decimal wraps apd.Decimal to give prices exact arithmetic plus database and
// JSON serialization. Prices are stored with 2 decimal places; 20 digits of
// precision is far beyond anything a Rial quote needs.
type Decimal struct {
	apd.Decimal
}

var decimalCtx = apd.BaseContext.WithPrecision(20)

func NewDecimalFromInt(v int64) Decimal {
	d := Decimal{}
	d.SetInt64(v)
	return d
}

func NewDecimalFromString(v string) (Decimal, error) {
	d := Decimal{}
	_, _, err := d.SetString(v)
	if err != nil {
		return d, fmt.Errorf("invalid decimal string %q: %w", v, err)
	}
	return d, nil
}

func (d Decimal) String() string {
	return d.Decimal.String()
}

// Value implements driver.Valuer for database serialization.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner for database deserialization.
func (d *Decimal) Scan(value interface{}) error {
	if value == nil {
		d.SetInt64(0)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		_, _, err := d.SetString(string(v))
		return err
	case string:
		_, _, err := d.SetString(v)
		return err
	case int64:
		d.SetInt64(v)
		return nil
	case float64:
		_, err := d.SetFloat64(v)
		return err
	default:
		return fmt.Errorf("unsupported type for Decimal scan: %T", value)
	}
}

func (d Decimal) IsZero() bool {
	return d.Decimal.IsZero()
}

func (d Decimal) IsNegative() bool {
	return d.Decimal.Negative && !d.Decimal.IsZero()
}

func (d Decimal) Equal(other Decimal) bool {
	return d.Decimal.Cmp(&other.Decimal) == 0
}

func (d Decimal) Cmp(other Decimal) int {
	return d.Decimal.Cmp(&other.Decimal)
}

// DivInt64 divides by a non-zero integer. Display layers use this to convert
// a stored Rial price to Toman.
func (d Decimal) DivInt64(v int64) (Decimal, error) {
	if v == 0 {
		return Decimal{}, fmt.Errorf("division by zero")
	}
	divisor := NewDecimalFromInt(v)
	res := Decimal{}
	if _, err := decimalCtx.Quo(&res.Decimal, &d.Decimal, &divisor.Decimal); err != nil {
		return res, fmt.Errorf("div operation failed: %w", err)
	}
	return res, nil
}

// ToToman converts a Rial amount to Toman (1 Toman = 10 Rial).
func (d Decimal) ToToman() Decimal {
	res, _ := d.DivInt64(10)
	return res
}

// MarshalJSON emits the bare numeric form.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	_, _, err := d.SetString(s)
	return err
}
