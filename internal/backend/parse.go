// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeJSON unmarshals a backend's structured output into v, tolerating
// the wrapping models habitually add. It attempts a strict parse first,
// then strips markdown code fences, then extracts the first balanced JSON
// object from surrounding commentary. If all passes fail it returns an
// error rather than guessing semantics from free text.
func DecodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(bytes.TrimSpace(data), v); err == nil {
		return nil
	}

	cleaned := stripFences(bytes.TrimSpace(data))
	if err := json.Unmarshal(cleaned, v); err == nil {
		return nil
	}

	obj := firstObject(cleaned)
	if obj == nil {
		return fmt.Errorf("no JSON object found in backend output")
	}
	if err := json.Unmarshal(obj, v); err != nil {
		return fmt.Errorf("parsing extracted JSON object: %w", err)
	}
	return nil
}

// stripFences removes a wrapping markdown code fence (``` or ```json).
func stripFences(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte("```")) {
		return data
	}
	// Drop the opening fence line.
	if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
		data = data[nl+1:]
	} else {
		return data
	}
	// Drop the closing fence and anything after it.
	if end := bytes.LastIndex(data, []byte("```")); end >= 0 {
		data = data[:end]
	}
	return bytes.TrimSpace(data)
}

// firstObject returns the first balanced {...} block in data, skipping
// braces inside JSON string literals. Returns nil when none exists.
func firstObject(data []byte) []byte {
	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return nil
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return data[start : i+1]
			}
		}
	}
	return nil
}
