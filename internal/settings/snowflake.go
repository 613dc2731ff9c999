package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Snowflake is a Discord id. It is kept as a string in memory and written as a
// JSON number, or null when unset.
type Snowflake string

func (s Snowflake) String() string { return string(s) }

func (s Snowflake) IsZero() bool { return s == "" }

func (s Snowflake) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseUint(string(s), 10, 64); err != nil {
		return json.Marshal(string(s))
	}
	return []byte(s), nil
}

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*s = Snowflake(value)
		return nil
	default:
		var number json.Number
		if err := json.Unmarshal(data, &number); err != nil {
			return fmt.Errorf("snowflake: %w", err)
		}
		if _, err := strconv.ParseUint(number.String(), 10, 64); err != nil {
			return fmt.Errorf("snowflake %s: %w", number, err)
		}
		*s = Snowflake(number.String())
		return nil
	}
}
