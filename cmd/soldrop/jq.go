package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
)

// compileJQ parses and compiles every filter up front so a typo fails
// before any network call.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// toJQValue round-trips v through JSON so gojq sees plain maps, slices,
// strings, float64s and bools.
func toJQValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return out, nil
}

// applyJQ pipes v through codes in order. Each filter runs on every output
// of the one before it.
func applyJQ(codes []*gojq.Code, v any) ([]any, error) {
	values := []any{v}
	for _, code := range codes {
		var next []any
		for _, in := range values {
			iter := code.Run(in)
			for {
				out, ok := iter.Next()
				if !ok {
					break
				}
				if err, ok := out.(error); ok {
					var halt *gojq.HaltError
					if errors.As(err, &halt) && halt.Value() == nil {
						break
					}
					return nil, fmt.Errorf("jq filter failed: %w", err)
				}
				next = append(next, out)
			}
		}
		values = next
	}
	return values, nil
}

// printJSON writes v as indented JSON, or every result of the jq pipeline
// when filters are given.
func printJSON(w io.Writer, v any, codes []*gojq.Code) error {
	if len(codes) == 0 {
		return writeIndented(w, v)
	}

	in, err := toJQValue(v)
	if err != nil {
		return err
	}
	results, err := applyJQ(codes, in)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := writeIndented(w, r); err != nil {
			return err
		}
	}
	return nil
}

func writeIndented(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
