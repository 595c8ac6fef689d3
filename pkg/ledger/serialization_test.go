package ledger

import (
	"encoding/json"
	"math"
	"testing"
)

// TestFloatJSON tests that non-finite values survive a JSON round trip
func TestFloatJSON(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		encoded string
	}{
		{"finite", 1.25, `1.25`},
		{"zero", 0, `0`},
		{"positive infinity", math.Inf(1), `"+Inf"`},
		{"negative infinity", math.Inf(-1), `"-Inf"`},
		{"not a number", math.NaN(), `"NaN"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(Float(tt.value))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.encoded {
				t.Errorf("Marshal() = %s, expected %s", data, tt.encoded)
			}

			var f Float
			if err := json.Unmarshal(data, &f); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			got := float64(f)
			if math.IsNaN(tt.value) {
				if !math.IsNaN(got) {
					t.Errorf("Unmarshal() = %v, expected NaN", got)
				}
				return
			}
			if got != tt.value {
				t.Errorf("Unmarshal() = %v, expected %v", got, tt.value)
			}
		})
	}
}

// TestFloatJSON_Invalid tests rejection of malformed values
func TestFloatJSON_Invalid(t *testing.T) {
	var f Float
	if err := json.Unmarshal([]byte(`"lots"`), &f); err == nil {
		t.Error("expected error for non-numeric string")
	}
	if err := json.Unmarshal([]byte(`true`), &f); err == nil {
		t.Error("expected error for boolean")
	}
}

// TestDecode_WrapsErrors tests that decode names the target type
func TestDecode_WrapsErrors(t *testing.T) {
	var o Observation
	err := decode([]byte(`{not json`), &o)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got[:len("failed to deserialize")] != "failed to deserialize" {
		t.Errorf("unexpected error: %v", err)
	}
}
