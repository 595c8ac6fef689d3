package docker

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Label keys used for nroy resources
const (
	LabelProject       = "nroy.project"
	LabelCampaignName  = "nroy.campaign.name"
	LabelCampaignRunID = "nroy.campaign.run_id"
	LabelSimulationRun = "nroy.simulation.run_id"
	LabelWorkDir       = "nroy.workdir"
	LabelComponent     = "nroy.component"
)

// ComponentSimulation labels simulator containers.
const ComponentSimulation = "simulation"

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// BuildLabels creates the standard label set for nroy containers.
// All parameters are required except component (which is resource-specific).
func BuildLabels(campaignName, campaignRunID, workDir, component string) map[string]string {
	labels := map[string]string{
		LabelProject:       "true",
		LabelCampaignName:  campaignName,
		LabelCampaignRunID: campaignRunID,
		LabelWorkDir:       workDir,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for a campaign invocation or simulation run.
func GenerateRunID() string {
	return uuid.New().String()
}

// SimulationContainerName returns the container name for one simulation run.
// Characters Docker does not accept in names are replaced with '-'.
func SimulationContainerName(campaignName, runID string) string {
	return invalidNameChars.ReplaceAllString(fmt.Sprintf("nroy-%s-run-%s", campaignName, runID), "-")
}

// CampaignFilter returns the label filter matching every container of a campaign.
func CampaignFilter(campaignName string) string {
	return fmt.Sprintf("%s=%s", LabelCampaignName, campaignName)
}
