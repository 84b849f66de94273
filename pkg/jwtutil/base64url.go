package jwtutil

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedSegment is returned when a base64url segment has an impossible length.
var ErrMalformedSegment = errors.New("jwtutil: malformed base64url segment")

var (
	toURLAlphabet = strings.NewReplacer("+", "-", "/", "_")
	toStdAlphabet = strings.NewReplacer("-", "+", "_", "/")
)

// EncodeSegment encodes data using the unpadded base64url alphabet used by JWT segments.
func EncodeSegment(data []byte) string {
	out := base64.StdEncoding.EncodeToString(data)
	out = strings.TrimRight(out, "=")
	return toURLAlphabet.Replace(out)
}

// DecodeSegment reverses EncodeSegment, restoring the padding from the segment length.
func DecodeSegment(segment string) ([]byte, error) {
	std := toStdAlphabet.Replace(segment)
	switch len(std) % 4 {
	case 0:
	case 2:
		std += "=="
	case 3:
		std += "="
	default:
		return nil, ErrMalformedSegment
	}
	data, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return nil, fmt.Errorf("jwtutil: decode segment: %w", err)
	}
	return data, nil
}
