package booking

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{"Date":"2024-03-23","Time":"12:29:38","Booking ID":"CNR5884300","Booking Status":"Completed","Customer ID":"CID1982111","Vehicle Type":"eBike","Pickup Location":"Palam Vihar","Drop Location":"Jhilmil"}`

func withField(t *testing.T, key string, value interface{}) []byte {
	t.Helper()
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(validBody), &obj))
	obj[key] = value
	b, err := json.Marshal(obj)
	require.NoError(t, err)
	return b
}

func withoutField(t *testing.T, key string) []byte {
	t.Helper()
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(validBody), &obj))
	delete(obj, key)
	b, err := json.Marshal(obj)
	require.NoError(t, err)
	return b
}

func validationErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	return verr.Errors
}

func TestDecodeValid(t *testing.T) {
	b, err := Decode([]byte(validBody))
	require.NoError(t, err)

	assert.Equal(t, "2024-03-23", b.Date)
	assert.Equal(t, "12:29:38", b.Time)
	assert.Equal(t, "CNR5884300", b.BookingID)
	assert.Equal(t, "Completed", b.BookingStatus)
	assert.Equal(t, "CID1982111", b.CustomerID)
	assert.Equal(t, "eBike", b.VehicleType)
	assert.Equal(t, "Palam Vihar", b.PickupLocation)
	assert.Equal(t, "Jhilmil", b.DropLocation)
	assert.Nil(t, b.BookingValue)
	assert.Nil(t, b.PaymentMethod)
}

func TestDecodeOptionalFields(t *testing.T) {
	body := withField(t, "Booking Value", 250.5)
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &obj))
	obj["Ride Distance"] = 15
	obj["Driver Ratings"] = nil
	obj["Payment Method"] = "UPI"
	obj["Unknown Extra"] = map[string]interface{}{"x": 1}
	body, _ = json.Marshal(obj)

	b, err := Decode(body)
	require.NoError(t, err)
	require.NotNil(t, b.BookingValue)
	assert.Equal(t, 250.5, *b.BookingValue)
	require.NotNil(t, b.RideDistance)
	assert.Equal(t, 15.0, *b.RideDistance)
	assert.Nil(t, b.DriverRatings)
	require.NotNil(t, b.PaymentMethod)
	assert.Equal(t, "UPI", *b.PaymentMethod)
}

func TestDecodeMissingRequired(t *testing.T) {
	for _, f := range Fields {
		if !f.Required {
			continue
		}
		t.Run(f.Name, func(t *testing.T) {
			_, err := Decode(withoutField(t, f.Name))
			errs := validationErrors(t, err)
			require.Len(t, errs, 1)
			assert.Equal(t, "missing", errs[0].Type)
			assert.Equal(t, []string{"body", f.Name}, errs[0].Loc)
		})
	}
}

func TestDecodeWrongTypes(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    interface{}
		wantType string
	}{
		{"number as string", "Booking Value", "not-a-number", "float_type"},
		{"numeric string is not a number", "Ride Distance", "12.5", "float_type"},
		{"bool as number", "Customer Rating", true, "float_type"},
		{"number as required string", "Booking ID", 5884300, "string_type"},
		{"null required string", "Date", nil, "string_type"},
		{"object as payment method", "Payment Method", map[string]interface{}{}, "string_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(withField(t, tt.key, tt.value))
			errs := validationErrors(t, err)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantType, errs[0].Type)
			assert.Equal(t, []string{"body", tt.key}, errs[0].Loc)
		})
	}
}

func TestDecodeReportsEveryViolation(t *testing.T) {
	_, err := Decode([]byte(`{"Booking Value":"x"}`))
	errs := validationErrors(t, err)
	// eight missing required fields plus one wrong type
	assert.Len(t, errs, 9)
	assert.Contains(t, err.Error(), "9 validation error(s)")
}

func TestDecodeNotAnObject(t *testing.T) {
	for _, body := range []string{`[1,2]`, `42`, `"text"`, `null`} {
		_, err := Decode([]byte(body))
		errs := validationErrors(t, err)
		assert.Equal(t, "model_attributes_type", errs[0].Type, body)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	for _, body := range []string{``, `{`, `{"Date":}`, validBody + `{}`} {
		_, err := Decode([]byte(body))
		errs := validationErrors(t, err)
		assert.Equal(t, "json_invalid", errs[0].Type, body)
	}
}

func TestDecodeErrorRecordSentinelIsRejected(t *testing.T) {
	_, err := Decode([]byte(`{"error":"invalid_json","line_number":7,"raw_data":"{oops"}`))
	errs := validationErrors(t, err)
	assert.Len(t, errs, 8)
}

func TestMarshalJSONUsesWireNames(t *testing.T) {
	b, err := Decode(withField(t, "Booking Value", 250.5))
	require.NoError(t, err)

	out, err := json.Marshal(b)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"Date":"2024-03-23","Time":"12:29:38","Booking ID":"CNR5884300",
		"Booking Status":"Completed","Customer ID":"CID1982111","Vehicle Type":"eBike",
		"Pickup Location":"Palam Vihar","Drop Location":"Jhilmil",
		"Booking Value":250.5,"Ride Distance":null,"Driver Ratings":null,
		"Customer Rating":null,"Payment Method":null
	}`, string(out))

	var back RideBooking
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, *b, back)
}

func TestMap(t *testing.T) {
	b, err := Decode([]byte(validBody))
	require.NoError(t, err)

	m := b.Map()
	assert.Len(t, m, len(Fields))
	assert.Equal(t, "CNR5884300", m["Booking ID"])
	assert.Nil(t, m["Payment Method"])
}
