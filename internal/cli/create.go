package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/pew/internal/config"
	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/templates"
	"github.com/spf13/cobra"
)

var createTemplate string

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new project in the current directory",
	Long: `Create copies a project template into a new directory named after
the project (spaces removed) and fills in its name and identifier.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := workingDir()
		if err != nil {
			return err
		}
		_, err = executeCreate(dir, args[0], createTemplate)
		return err
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVar(&createTemplate, "template", "default",
		fmt.Sprintf("Project template (available: %s)", strings.Join(templates.ProjectTemplates(), ", ")))
}

// executeCreate creates the project under parent and returns its directory.
func executeCreate(parent, name, template string) (string, error) {
	safeName := strings.ReplaceAll(name, " ", "")
	if safeName == "" {
		return "", pewerr.Configf("project name %q is empty", name)
	}
	dir := filepath.Join(parent, safeName)
	fmt.Printf("Creating project %s in directory %s\n", name, dir)
	if files.Exists(dir) {
		return "", pewerr.Preconditionf("Project already exists! Please delete or rename the existing project folder and try again.")
	}
	if err := templates.CopyProject(template, dir); err != nil {
		return "", err
	}

	info := filepath.Join(dir, config.DescriptorFile)
	data, err := os.ReadFile(info)
	if err != nil {
		return "", err
	}
	var desc map[string]any
	if err := json.Unmarshal(data, &desc); err != nil {
		return "", fmt.Errorf("template descriptor is invalid: %w", err)
	}
	desc["name"] = name
	desc["identifier"] = "com.yourdomain." + safeName
	out, err := json.MarshalIndent(desc, "", "    ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(info, append(out, '\n'), 0644); err != nil {
		return "", err
	}
	fmt.Printf("✓ Created %s\n", dir)
	return dir, nil
}
