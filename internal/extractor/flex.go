package extractor

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The site's embedded data has shipped numbers as JSON numbers, quoted
// strings and booleans as 0/1 across page generations. The Flex types accept
// all observed encodings.

// FlexFloat is a float64 that also accepts a quoted number.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// Float returns the value as a plain float64.
func (f FlexFloat) Float() float64 {
	return float64(f)
}

// FlexInt is an int that also accepts a quoted number.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (i *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*i = FlexInt(v)
	return nil
}

// Int returns the value as a plain int.
func (i FlexInt) Int() int {
	return int(i)
}

// FlexBool is a bool that also accepts 0/1 and "true"/"false".
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}
	s := strings.Trim(string(data), `"`)
	switch s {
	case "", "null", "0", "false":
		*b = false
	default:
		*b = true
	}
	return nil
}

// Bool returns the value as a plain bool.
func (b FlexBool) Bool() bool {
	return bool(b)
}
