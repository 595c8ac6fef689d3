package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/nroy/internal/config"
)

// CheckExisting returns an error listing the existing files if dir already
// holds a campaign.yml or a simulator/ directory.
func CheckExisting(dir string) error {
	var existing []string

	if _, err := os.Stat(filepath.Join(dir, config.DefaultFile)); err == nil {
		existing = append(existing, config.DefaultFile)
	}
	if info, err := os.Stat(filepath.Join(dir, SimulatorDir)); err == nil && info.IsDir() {
		existing = append(existing, SimulatorDir+"/")
	}

	if len(existing) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Found existing")
	if len(existing) == 1 {
		fmt.Fprintf(&b, ": %s\n", existing[0])
	} else {
		b.WriteString(" files:\n")
		for _, f := range existing {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	b.WriteString("\nUse 'nroy init --force' to reinitialize (this will overwrite existing configuration)")
	return fmt.Errorf("%s", b.String())
}
