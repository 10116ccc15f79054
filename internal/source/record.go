package source

import (
	"bytes"
	"encoding/json"
	"errors"
)

// InvalidJSON is the error tag carried by ErrorRecord
const InvalidJSON = "invalid_json"

// ErrorRecord stands in for a line that could not be decoded
type ErrorRecord struct {
	Error      string `json:"error"`
	LineNumber int64  `json:"line_number"`
	RawData    string `json:"raw_data"`
}

// Record is one unit produced by the source: either the decoded JSON value
// of a line, or an ErrorRecord sentinel for that line.
type Record struct {
	LineNo  int64
	Value   interface{}
	Invalid *ErrorRecord
}

// IsError reports whether the record is an ErrorRecord sentinel
func (r Record) IsError() bool {
	return r.Invalid != nil
}

// MarshalJSON encodes the decoded value, or the sentinel for malformed lines
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Invalid != nil {
		return json.Marshal(r.Invalid)
	}
	return json.Marshal(r.Value)
}

// decodeLine decodes a trimmed line. Numbers stay json.Number so that
// re-encoding keeps their original text.
func decodeLine(line []byte) (interface{}, error) {
	if !json.Valid(line) {
		var v interface{}
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, err
		}
		return nil, errors.New("invalid JSON")
	}

	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
