package ledger

import (
	"strings"
	"testing"
)

// TestObservationKey tests observation key generation
func TestObservationKey(t *testing.T) {
	key := ObservationKey("fault-stress", 12)

	expected := "nroy:fault-stress:observation:12"
	if key != expected {
		t.Errorf("ObservationKey() = %q, expected %q", key, expected)
	}

	if !strings.HasPrefix(key, ObservationPrefix("fault-stress")) {
		t.Error("observation key should start with the observation prefix")
	}
	if !strings.HasPrefix(key, CampaignPrefix("fault-stress")) {
		t.Error("observation key should start with the campaign prefix")
	}
}

// TestFailureKey tests failure key generation
func TestFailureKey(t *testing.T) {
	key := FailureKey("c1", 0)

	expected := "nroy:c1:failure:0"
	if key != expected {
		t.Errorf("FailureKey() = %q, expected %q", key, expected)
	}
}

// TestSingletonKeys tests the keys that hold one record per campaign
func TestSingletonKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"design", DesignKey("c"), "nroy:c:design"},
		{"training points", TrainingPointsKey("c"), "nroy:c:training_points"},
		{"reference", ReferenceKey("c"), "nroy:c:reference"},
		{"report", ReportKey("c"), "nroy:c:report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, expected %q", tt.got, tt.expected)
			}
		})
	}
}

// TestParseIndex tests index extraction from keys
func TestParseIndex(t *testing.T) {
	prefix := ObservationPrefix("c")

	index, err := ParseIndex(ObservationKey("c", 42), prefix)
	if err != nil {
		t.Fatalf("ParseIndex() error = %v", err)
	}
	if index != 42 {
		t.Errorf("ParseIndex() = %d, expected 42", index)
	}

	if _, err := ParseIndex("nroy:c:report", prefix); err == nil {
		t.Error("expected error for key with a different prefix")
	}
	if _, err := ParseIndex(prefix+"abc", prefix); err == nil {
		t.Error("expected error for non-numeric index")
	}
}
