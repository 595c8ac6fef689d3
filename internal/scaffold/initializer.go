package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/nroy/internal/config"
	"github.com/dyluth/nroy/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

// SimulatorDir holds the example simulator created by Initialize.
const SimulatorDir = "simulator"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Template    string
	Permissions os.FileMode
}

// Files lists what Initialize creates, relative to the campaign directory.
var Files = []FileInfo{
	{Path: config.DefaultFile, Template: "templates/campaign.yml.tmpl", Permissions: 0o644},
	{Path: filepath.Join(SimulatorDir, "simulate.py"), Template: "templates/simulate.py.tmpl", Permissions: 0o755},
	{Path: filepath.Join(SimulatorDir, "README.md"), Template: "templates/README.md.tmpl", Permissions: 0o644},
}

// Initialize writes a starter campaign into dir and returns the created
// paths. With force, an existing campaign.yml and simulator/ directory are
// removed first.
func Initialize(dir string, force bool) ([]string, error) {
	if force {
		if err := handleForce(dir); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Join(dir, SimulatorDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", SimulatorDir, err)
	}

	created := make([]string, 0, len(Files))
	for _, f := range Files {
		content, err := templatesFS.ReadFile(f.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", f.Path, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.Path), content, f.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
		created = append(created, f.Path)
	}

	if err := validateCreatedFiles(dir); err != nil {
		return nil, err
	}
	return created, nil
}

// handleForce removes existing files if --force was specified
func handleForce(dir string) error {
	cfgPath := filepath.Join(dir, config.DefaultFile)
	if _, err := os.Stat(cfgPath); err == nil {
		printer.Warning("Removing existing %s...\n", config.DefaultFile)
		if err := os.Remove(cfgPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", config.DefaultFile, err)
		}
	}

	simDir := filepath.Join(dir, SimulatorDir)
	if info, err := os.Stat(simDir); err == nil && info.IsDir() {
		printer.Warning("Removing existing %s/ directory...\n", SimulatorDir)
		if err := os.RemoveAll(simDir); err != nil {
			return fmt.Errorf("failed to remove %s/ directory: %w", SimulatorDir, err)
		}
	}

	return nil
}

// validateCreatedFiles loads the written campaign.yml through the same
// validation every other command uses.
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, config.DefaultFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", config.DefaultFile, err)
	}
	return nil
}

// PrintSuccess prints the created files and the next steps.
func PrintSuccess(created []string) {
	printer.Success("Initialized nroy campaign\n")
	printer.Info("\nCreated:\n")
	for _, path := range created {
		printer.Info("  ✓ %s\n", path)
	}
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Add '.nroy/' and 'runs/' to your .gitignore file\n")
	printer.Info("  2. Edit %s: set your parameters, simulator command and observed value\n", config.DefaultFile)
	printer.Info("  3. Run 'nroy run' to simulate, fit the emulator and rule out implausible points\n")
}
