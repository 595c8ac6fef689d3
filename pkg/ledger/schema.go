package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// Key pattern helpers
//
// Key pattern: nroy:{campaign}:{entity}[:{index}]

// CampaignPrefix returns the prefix shared by every key of a campaign.
// Pattern: nroy:{campaign}:
func CampaignPrefix(campaign string) string {
	return fmt.Sprintf("nroy:%s:", campaign)
}

// DesignKey returns the key of the persisted design.
// Pattern: nroy:{campaign}:design
func DesignKey(campaign string) string {
	return CampaignPrefix(campaign) + "design"
}

// TrainingPointsKey returns the key of the drawn training points.
// Pattern: nroy:{campaign}:training_points
func TrainingPointsKey(campaign string) string {
	return CampaignPrefix(campaign) + "training_points"
}

// ObservationPrefix returns the prefix of all observation keys.
// Pattern: nroy:{campaign}:observation:
func ObservationPrefix(campaign string) string {
	return CampaignPrefix(campaign) + "observation:"
}

// ObservationKey returns the key of the observation for a sample index.
// Pattern: nroy:{campaign}:observation:{index}
func ObservationKey(campaign string, index int) string {
	return ObservationPrefix(campaign) + strconv.Itoa(index)
}

// FailurePrefix returns the prefix of all failure keys.
// Pattern: nroy:{campaign}:failure:
func FailurePrefix(campaign string) string {
	return CampaignPrefix(campaign) + "failure:"
}

// FailureKey returns the key of the failure record for a sample index.
// Pattern: nroy:{campaign}:failure:{index}
func FailureKey(campaign string, index int) string {
	return FailurePrefix(campaign) + strconv.Itoa(index)
}

// ReferenceKey returns the key of the simulated reference observation.
// Pattern: nroy:{campaign}:reference
func ReferenceKey(campaign string) string {
	return CampaignPrefix(campaign) + "reference"
}

// ReportKey returns the key of the latest report.
// Pattern: nroy:{campaign}:report
func ReportKey(campaign string) string {
	return CampaignPrefix(campaign) + "report"
}

// ParseIndex extracts the sample index from an observation or failure key.
func ParseIndex(key, prefix string) (int, error) {
	if !strings.HasPrefix(key, prefix) {
		return 0, fmt.Errorf("key %q does not start with %q", key, prefix)
	}
	index, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
	if err != nil {
		return 0, fmt.Errorf("key %q has no numeric index: %w", key, err)
	}
	return index, nil
}
