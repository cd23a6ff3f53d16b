package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/consent/internal/capability"
)

// marshalCapabilities converts names to canonical JSON TEXT for storage.
func marshalCapabilities(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	data, err := capability.MarshalCanonical(names)
	if err != nil {
		return "", fmt.Errorf("marshal capabilities: %w", err)
	}
	return string(data), nil
}

// marshalResult converts a result to canonical JSON TEXT, or NULL when absent.
func marshalResult(rs *capability.ResultSet) (sql.NullString, error) {
	if rs == nil {
		return sql.NullString{}, nil
	}
	data, err := capability.MarshalCanonical(*rs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalCapabilities(data string) ([]string, error) {
	names := []string{}
	if data == "" {
		return names, nil
	}
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	return names, nil
}

func unmarshalResult(data sql.NullString) (map[string]bool, error) {
	if !data.Valid {
		return nil, nil
	}
	var result map[string]bool
	if err := json.Unmarshal([]byte(data.String), &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}
