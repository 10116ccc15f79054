// Package booking holds the RideBooking wire schema and its validator.
//
// External field names contain spaces ("Booking ID"), so the mapping between
// wire names and struct fields is an explicit table rather than struct tags.
package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind is the primitive JSON type a field must carry
type Kind int

const (
	KindString Kind = iota
	KindNumber
)

func (k Kind) String() string {
	if k == KindNumber {
		return "number"
	}
	return "string"
}

// RideBooking is a validated ride booking record
type RideBooking struct {
	Date           string
	Time           string
	BookingID      string
	BookingStatus  string
	CustomerID     string
	VehicleType    string
	PickupLocation string
	DropLocation   string
	BookingValue   *float64
	RideDistance   *float64
	DriverRatings  *float64
	CustomerRating *float64
	PaymentMethod  *string
}

// Field maps one wire name onto a RideBooking field
type Field struct {
	Name     string
	Kind     Kind
	Required bool

	get func(*RideBooking) interface{}
	set func(*RideBooking, interface{})
}

func requiredString(name string, p func(*RideBooking) *string) Field {
	return Field{
		Name:     name,
		Kind:     KindString,
		Required: true,
		get:      func(b *RideBooking) interface{} { return *p(b) },
		set:      func(b *RideBooking, v interface{}) { *p(b) = v.(string) },
	}
}

func optionalNumber(name string, p func(*RideBooking) **float64) Field {
	return Field{
		Name: name,
		Kind: KindNumber,
		get: func(b *RideBooking) interface{} {
			if v := *p(b); v != nil {
				return *v
			}
			return nil
		},
		set: func(b *RideBooking, v interface{}) {
			f := v.(float64)
			*p(b) = &f
		},
	}
}

func optionalString(name string, p func(*RideBooking) **string) Field {
	return Field{
		Name: name,
		Kind: KindString,
		get: func(b *RideBooking) interface{} {
			if v := *p(b); v != nil {
				return *v
			}
			return nil
		},
		set: func(b *RideBooking, v interface{}) {
			s := v.(string)
			*p(b) = &s
		},
	}
}

// Fields is the RideBooking schema in wire order
var Fields = []Field{
	requiredString("Date", func(b *RideBooking) *string { return &b.Date }),
	requiredString("Time", func(b *RideBooking) *string { return &b.Time }),
	requiredString("Booking ID", func(b *RideBooking) *string { return &b.BookingID }),
	requiredString("Booking Status", func(b *RideBooking) *string { return &b.BookingStatus }),
	requiredString("Customer ID", func(b *RideBooking) *string { return &b.CustomerID }),
	requiredString("Vehicle Type", func(b *RideBooking) *string { return &b.VehicleType }),
	requiredString("Pickup Location", func(b *RideBooking) *string { return &b.PickupLocation }),
	requiredString("Drop Location", func(b *RideBooking) *string { return &b.DropLocation }),
	optionalNumber("Booking Value", func(b *RideBooking) **float64 { return &b.BookingValue }),
	optionalNumber("Ride Distance", func(b *RideBooking) **float64 { return &b.RideDistance }),
	optionalNumber("Driver Ratings", func(b *RideBooking) **float64 { return &b.DriverRatings }),
	optionalNumber("Customer Rating", func(b *RideBooking) **float64 { return &b.CustomerRating }),
	optionalString("Payment Method", func(b *RideBooking) **string { return &b.PaymentMethod }),
}

// FieldError describes one schema violation
type FieldError struct {
	Type  string      `json:"type"`
	Loc   []string    `json:"loc"`
	Msg   string      `json:"msg"`
	Input interface{} `json:"input,omitempty"`
}

// ValidationError is returned when a body does not satisfy the schema
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(fe.Loc, "."), fe.Msg))
	}
	return fmt.Sprintf("%d validation error(s): %s", len(e.Errors), strings.Join(parts, "; "))
}

// Decode parses a request body and validates it against the schema.
// Any failure is a *ValidationError.
func Decode(body []byte) (*RideBooking, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw interface{}
	err := dec.Decode(&raw)
	if err == nil {
		if extra := dec.Decode(new(interface{})); extra != io.EOF {
			err = errors.New("unexpected data after top-level value")
		}
	}
	if err != nil {
		return nil, &ValidationError{Errors: []FieldError{{
			Type: "json_invalid",
			Loc:  []string{"body"},
			Msg:  fmt.Sprintf("JSON decode error: %v", err),
		}}}
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Errors: []FieldError{{
			Type:  "model_attributes_type",
			Loc:   []string{"body"},
			Msg:   "Input should be a valid dictionary or object to extract fields from",
			Input: raw,
		}}}
	}

	return FromMap(obj)
}

// FromMap validates an already decoded JSON object. Unknown keys are ignored.
func FromMap(obj map[string]interface{}) (*RideBooking, error) {
	b := &RideBooking{}
	var errs []FieldError

	for _, f := range Fields {
		v, present := obj[f.Name]
		loc := []string{"body", f.Name}

		if !present {
			if f.Required {
				errs = append(errs, FieldError{Type: "missing", Loc: loc, Msg: "Field required"})
			}
			continue
		}
		if v == nil && !f.Required {
			continue
		}

		switch f.Kind {
		case KindString:
			s, ok := v.(string)
			if !ok {
				errs = append(errs, FieldError{Type: "string_type", Loc: loc, Msg: "Input should be a valid string", Input: v})
				continue
			}
			f.set(b, s)
		case KindNumber:
			n, ok := toFloat(v)
			if !ok {
				errs = append(errs, FieldError{Type: "float_type", Loc: loc, Msg: "Input should be a valid number", Input: v})
				continue
			}
			f.set(b, n)
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return b, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	}
	return 0, false
}

// MarshalJSON writes the record with wire names in schema order. Absent
// optional fields are written as null.
func (b *RideBooking) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.get(b))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes and validates a wire record
func (b *RideBooking) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*b = *decoded
	return nil
}

// Map returns the record keyed by wire name
func (b *RideBooking) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(Fields))
	for _, f := range Fields {
		out[f.Name] = f.get(b)
	}
	return out
}
