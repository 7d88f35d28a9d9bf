package hodl

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidParams is returned when command parameters are missing, unknown
// or of the wrong type. No side effect has happened when it is returned.
var ErrInvalidParams = errors.New("invalid parameters")

// addParamNames lists the parameters of the add command in positional order.
var addParamNames = []string{
	"amount_msat",
	"description",
	"label",
	"expiry",
	"fallbacks",
	"preimage",
	"exposeprivatechannels",
	"deschashonly",
}

// requiredAddParams is the number of leading addParamNames that must be set.
const requiredAddParams = 3

// Amount is an invoice amount, either a number of millisatoshi or an amount
// string understood by the host such as "any" or "10sat".
type Amount struct {
	raw json.RawMessage
}

// AmountMsat returns an amount of msat millisatoshi.
func AmountMsat(msat uint64) Amount {
	return Amount{raw: json.RawMessage(strconv.FormatUint(msat, 10))}
}

// IsZero reports whether the amount was never set.
func (a Amount) IsZero() bool {
	return len(a.raw) == 0
}

// String returns the amount as given by the operator.
func (a Amount) String() string {
	return strings.Trim(string(a.raw), `"`)
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.IsZero() {
		return []byte("null"), nil
	}
	return a.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("empty amount")
	}

	switch {
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return errors.New("empty amount")
		}

	case b[0] >= '0' && b[0] <= '9':
		if _, err := strconv.ParseUint(string(b), 10, 64); err != nil {
			return fmt.Errorf("amount must be a whole number of "+
				"msat: %v", err)
		}

	default:
		return fmt.Errorf("amount must be a number or string, got %s", b)
	}

	a.raw = append(json.RawMessage(nil), b...)
	return nil
}

// ExposePrivateChannels is either a flag or the list of private short
// channel ids whose hints may be added to an invoice.
type ExposePrivateChannels struct {
	Flag     *bool
	Channels []string
}

// MarshalJSON implements json.Marshaler.
func (e ExposePrivateChannels) MarshalJSON() ([]byte, error) {
	if e.Flag != nil {
		return json.Marshal(*e.Flag)
	}
	return json.Marshal(e.Channels)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ExposePrivateChannels) UnmarshalJSON(b []byte) error {
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil {
		e.Flag = &flag
		return nil
	}
	var channels []string
	if err := json.Unmarshal(b, &channels); err != nil {
		return errors.New("must be a bool or a list of short channel ids")
	}
	e.Channels = channels
	return nil
}

// AddParams are the validated parameters of the add command.
type AddParams struct {
	AmountMsat            Amount
	Description           string
	Label                 string
	Expiry                *uint64
	Fallbacks             []string
	Preimage              *string
	ExposePrivateChannels *ExposePrivateChannels
	DescHashOnly          *bool
}

func (p *AddParams) field(name string) interface{} {
	switch name {
	case "amount_msat":
		return &p.AmountMsat
	case "description":
		return &p.Description
	case "label":
		return &p.Label
	case "expiry":
		return &p.Expiry
	case "fallbacks":
		return &p.Fallbacks
	case "preimage":
		return &p.Preimage
	case "exposeprivatechannels":
		return &p.ExposePrivateChannels
	case "deschashonly":
		return &p.DescHashOnly
	default:
		return nil
	}
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// paramFields splits named or positional parameters into a map keyed by
// parameter name. Null values are treated as absent.
func paramFields(raw json.RawMessage, names []string) (map[string]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	fields := make(map[string]json.RawMessage)

	switch {
	case len(raw) == 0:
		return fields, nil

	case raw[0] == '[':
		var positional []json.RawMessage
		if err := json.Unmarshal(raw, &positional); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if len(positional) > len(names) {
			return nil, fmt.Errorf("%w: expected at most %d "+
				"parameters, got %d", ErrInvalidParams,
				len(names), len(positional))
		}
		for i, v := range positional {
			if !isNull(v) {
				fields[names[i]] = v
			}
		}

	case raw[0] == '{':
		var named map[string]json.RawMessage
		if err := json.Unmarshal(raw, &named); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		known := make(map[string]bool, len(names))
		for _, name := range names {
			known[name] = true
		}
		for name, v := range named {
			if !known[name] {
				return nil, fmt.Errorf("%w: unknown parameter "+
					"%q", ErrInvalidParams, name)
			}
			if !isNull(v) {
				fields[name] = v
			}
		}

	default:
		return nil, fmt.Errorf("%w: expected an object or an array",
			ErrInvalidParams)
	}

	return fields, nil
}

// DecodeAddParams validates the raw parameters of the add command. Every
// check happens here, before anything is written.
func DecodeAddParams(raw json.RawMessage) (*AddParams, error) {
	fields, err := paramFields(raw, addParamNames)
	if err != nil {
		return nil, err
	}

	for _, name := range addParamNames[:requiredAddParams] {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: missing required parameter "+
				"%q", ErrInvalidParams, name)
		}
	}

	p := new(AddParams)
	for name, v := range fields {
		if err := json.Unmarshal(v, p.field(name)); err != nil {
			return nil, fmt.Errorf("%w: invalid %s: %v",
				ErrInvalidParams, name, err)
		}
	}

	if p.Label == "" {
		return nil, fmt.Errorf("%w: label must not be empty",
			ErrInvalidParams)
	}
	if p.Preimage != nil {
		b, err := hex.DecodeString(*p.Preimage)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("%w: preimage must be 32 bytes "+
				"of hex", ErrInvalidParams)
		}
	}

	return p, nil
}

// DecodeKeyParam validates the parameters of a command taking exactly one
// key: either a one element array or an object with the single field "key".
func DecodeKeyParam(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)

	var v json.RawMessage
	switch {
	case len(raw) > 0 && raw[0] == '[':
		var positional []json.RawMessage
		if err := json.Unmarshal(raw, &positional); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if len(positional) != 1 {
			return "", fmt.Errorf("%w: please provide exactly one "+
				"key", ErrInvalidParams)
		}
		v = positional[0]

	case len(raw) > 0 && raw[0] == '{':
		var named map[string]json.RawMessage
		if err := json.Unmarshal(raw, &named); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		key, ok := named["key"]
		if !ok || len(named) != 1 {
			return "", fmt.Errorf("%w: please provide exactly one "+
				"key", ErrInvalidParams)
		}
		v = key

	default:
		return "", fmt.Errorf("%w: expected an object or an array",
			ErrInvalidParams)
	}

	var key string
	if err := json.Unmarshal(v, &key); err != nil {
		return "", fmt.Errorf("%w: key must be a string",
			ErrInvalidParams)
	}
	if key == "" {
		return "", fmt.Errorf("%w: key must not be empty",
			ErrInvalidParams)
	}
	return key, nil
}
