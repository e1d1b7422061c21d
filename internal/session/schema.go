package session

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed state_schema.json
var stateSchemaJSON string

var stateSchema = gojsonschema.NewStringLoader(stateSchemaJSON)

// decodeState validates an exported payload against the state schema and
// decodes it. The two passes keep Import free of side effects on bad input.
func decodeState(data []byte) (*State, error) {
	result, err := gojsonschema.Validate(stateSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validate state: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid state: %s", strings.Join(msgs, "; "))
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if st.ExecutionHistory == nil {
		st.ExecutionHistory = make([]ExecutionRecord, 0)
	}
	return &st, nil
}
