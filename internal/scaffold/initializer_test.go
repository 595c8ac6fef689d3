package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/nroy/internal/config"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		setupFunc func(string)
		wantErr   bool
	}{
		{
			name:      "fresh initialization",
			force:     false,
			setupFunc: func(dir string) {},
			wantErr:   false,
		},
		{
			name:  "force initialization removes existing files",
			force: true,
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, "campaign.yml"), []byte("old content"), 0644)
				os.MkdirAll(filepath.Join(dir, "simulator", "old"), 0755)
				os.WriteFile(filepath.Join(dir, "simulator", "old", "old.txt"), []byte("old"), 0644)
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setupFunc(dir)

			created, err := Initialize(dir, tt.force)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if len(created) != len(Files) {
				t.Errorf("Initialize() created %d files, want %d", len(created), len(Files))
			}

			expectedFiles := []struct {
				path       string
				executable bool
			}{
				{"campaign.yml", false},
				{"simulator/simulate.py", true},
				{"simulator/README.md", false},
			}
			for _, ef := range expectedFiles {
				info, err := os.Stat(filepath.Join(dir, ef.path))
				if err != nil {
					t.Errorf("expected file %s to exist: %v", ef.path, err)
					continue
				}
				if ef.executable && info.Mode()&0111 == 0 {
					t.Errorf("file %s should be executable", ef.path)
				}
			}

			if _, err := os.Stat(filepath.Join(dir, "simulator", "old")); !os.IsNotExist(err) {
				t.Errorf("old simulator/ content should have been removed")
			}

			cfg, err := config.Load(filepath.Join(dir, "campaign.yml"))
			if err != nil {
				t.Fatalf("created campaign.yml does not load: %v", err)
			}
			if cfg.Name != "example-campaign" {
				t.Errorf("Name = %q, want %q", cfg.Name, "example-campaign")
			}
			if got := cfg.ParameterSpace().Dim(); got != 2 {
				t.Errorf("parameter dimension = %d, want 2", got)
			}
			if !cfg.HistoryMatching.ReferenceRun {
				t.Errorf("template should use a reference run")
			}
		})
	}
}

func TestInitialize_TemplatesEmbedded(t *testing.T) {
	for _, f := range Files {
		content, err := templatesFS.ReadFile(f.Template)
		if err != nil {
			t.Errorf("template %s not embedded: %v", f.Template, err)
			continue
		}
		if len(content) == 0 {
			t.Errorf("template %s is empty", f.Template)
		}
	}
}
