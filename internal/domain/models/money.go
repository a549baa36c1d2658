package models

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Money is a decimal amount. It is stored as BSON Decimal128 and written to JSON
// as a string; JSON numbers are accepted on input.
type Money struct {
	decimal.Decimal
}

// NewMoney wraps d.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

// RequireMoney parses s and panics when it is not a decimal. Meant for literals.
func RequireMoney(s string) Money {
	return Money{Decimal: decimal.RequireFromString(s)}
}

// MarshalBSONValue encodes m as Decimal128.
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d, err := primitive.ParseDecimal128(m.String())
	if err != nil {
		return 0, nil, fmt.Errorf("encode money %s: %w", m.String(), err)
	}
	return bsontype.Decimal128, bsoncore.AppendDecimal128(nil, d), nil
}

// UnmarshalBSONValue decodes Decimal128, and the doubles and strings of older documents.
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Decimal128:
		d, _, ok := bsoncore.ReadDecimal128(data)
		if !ok {
			return errors.New("decode money: truncated decimal128")
		}
		v, err := decimal.NewFromString(d.String())
		if err != nil {
			return fmt.Errorf("decode money %s: %w", d.String(), err)
		}
		m.Decimal = v
	case bsontype.Double:
		f, _, ok := bsoncore.ReadDouble(data)
		if !ok {
			return errors.New("decode money: truncated double")
		}
		m.Decimal = decimal.NewFromFloat(f)
	case bsontype.String:
		s, _, ok := bsoncore.ReadString(data)
		if !ok {
			return errors.New("decode money: truncated string")
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("decode money %q: %w", s, err)
		}
		m.Decimal = v
	case bsontype.Null, bsontype.Undefined:
		m.Decimal = decimal.Zero
	default:
		return fmt.Errorf("decode money: unsupported bson type %s", t)
	}
	return nil
}

// MoneyValue lets validator tags such as gte=0 compare Money fields. Register it
// with RegisterCustomTypeFunc(MoneyValue, Money{}).
func MoneyValue(field reflect.Value) any {
	if m, ok := field.Interface().(Money); ok {
		return m.InexactFloat64()
	}
	return nil
}
