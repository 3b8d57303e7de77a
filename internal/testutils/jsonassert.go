package testutils

import (
	"encoding/json"
	"testing"

	gojsondiff "github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// AssertJSONEq marshals actual and compares it to the expected JSON document,
// failing the test with a readable diff on mismatch. Both sides must be
// top-level JSON objects.
func AssertJSONEq(t *testing.T, expected string, actual interface{}, msgAndArgs ...interface{}) bool {
	t.Helper()

	actualBytes, err := json.Marshal(actual)
	if err != nil {
		t.Errorf("failed to marshal actual value: %v", err)
		return false
	}

	diff, err := gojsondiff.New().Compare([]byte(expected), actualBytes)
	if err != nil {
		t.Errorf("failed to compare JSON documents: %v", err)
		return false
	}
	if !diff.Modified() {
		return true
	}

	var left map[string]interface{}
	if err := json.Unmarshal([]byte(expected), &left); err != nil {
		t.Errorf("expected document is not a JSON object: %v", err)
		return false
	}

	rendered, err := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	}).Format(diff)
	if err != nil {
		t.Errorf("failed to format JSON diff: %v", err)
		return false
	}

	if len(msgAndArgs) > 0 {
		t.Errorf("%v\nJSON mismatch:\n%s", msgAndArgs, rendered)
	} else {
		t.Errorf("JSON mismatch:\n%s", rendered)
	}
	return false
}
