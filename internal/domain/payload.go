package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodePayload renders a payload as JSON text, or nil for a nil payload.
func EncodePayload(p map[string]any) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("domain.EncodePayload: %w", err)
	}
	return data, nil
}

// DecodePayload parses JSON text written by EncodePayload. Numbers are kept as
// json.Number so that their literal survives a store round trip unchanged.
func DecodePayload(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p map[string]any
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("domain.DecodePayload: %w", err)
	}
	return p, nil
}

// NormalizePayload returns the form of p that every store reads back: plain
// maps, slices, strings, bools and json.Number. The result shares nothing
// with p.
func NormalizePayload(p map[string]any) (map[string]any, error) {
	data, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	return DecodePayload(data)
}
