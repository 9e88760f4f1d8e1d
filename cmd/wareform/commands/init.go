package commands

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

//go:embed templates
var templates embed.FS

const templateRoot = "templates"

func newInitCommand(_ *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new wareform project",
		Long: `Initialize a new wareform project with a starter configuration.

This creates:
  - wareform.yaml: desired configuration for one account
  - policies.yaml: policy overrides and a custom CEL rule
  - policies/: Rego policy modules

Existing files are never overwritten unless --force is given.`,
		Example: `  # Initialize in current directory
  wareform init

  # Initialize in a new directory
  wareform init my-account`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	log.Info().Str("directory", dir).Msg("Initializing wareform project")

	var files []string
	err := fs.WalkDir(templates, templateRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(templateRoot, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read project templates: %w", err)
	}

	if !force {
		for _, rel := range files {
			target := filepath.Join(dir, rel)
			if fileExists(target) {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}
		}
	}

	for _, rel := range files {
		data, err := fs.ReadFile(templates, templateRoot+"/"+filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", rel, err)
		}
		target := filepath.Join(dir, rel)
		if err := writeFile(target, data); err != nil {
			return err
		}
		log.Debug().Str("file", target).Msg("Created file")
	}

	if err := os.MkdirAll(filepath.Join(dir, "state"), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized wareform project in %s\n\n", dir)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Edit wareform.yaml to describe your account")
	fmt.Fprintln(out, "  2. Run 'wareform validate' to check policies")
	fmt.Fprintln(out, "  3. Run 'wareform plan' to preview changes")
	fmt.Fprintln(out, "  4. Run 'wareform apply' to record them")
	return nil
}
