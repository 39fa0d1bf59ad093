package rpc

import (
	"encoding/json"

	"github.com/trapp/kcoin/pkg/core/types"
)

func getString(m map[string]json.RawMessage, name string) (string, error) {
	raw, ok := m[name]
	if !ok {
		return "", errInvalidParams("Missing parameter: " + name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errInvalidParams("Not a string: " + name)
	}
	return s, nil
}

func getUint32(m map[string]json.RawMessage, name string) (uint32, error) {
	raw, ok := m[name]
	if !ok {
		return 0, errInvalidParams("Missing parameter: " + name)
	}
	var v uint32
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errInvalidParams("Not a number: " + name)
	}
	return v, nil
}

// optUint32 returns nil when the parameter is absent.
func optUint32(m map[string]json.RawMessage, name string) (*uint32, error) {
	if _, ok := m[name]; !ok {
		return nil, nil
	}
	v, err := getUint32(m, name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optInt64(m map[string]json.RawMessage, name string) (*int64, error) {
	raw, ok := m[name]
	if !ok {
		return nil, nil
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errInvalidParams("Not a number: " + name)
	}
	return &v, nil
}

func getAddress(m map[string]json.RawMessage, name string, network types.Network) (types.Address, error) {
	s, err := getString(m, name)
	if err != nil {
		return types.Address{}, err
	}
	addr, err := types.ParseAddress(s, network)
	if err != nil {
		return types.Address{}, errInvalidParams("Invalid address: " + name)
	}
	return addr, nil
}

func optAddress(m map[string]json.RawMessage, name string, network types.Network) (*types.Address, error) {
	if _, ok := m[name]; !ok {
		return nil, nil
	}
	addr, err := getAddress(m, name, network)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// limit returns the optional limit parameter, defaulting to 100.
func limit(m map[string]json.RawMessage, name string) (uint32, error) {
	if _, ok := m[name]; !ok {
		return 100, nil
	}
	return getUint32(m, name)
}
