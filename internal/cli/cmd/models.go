package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"whisperdesk/internal/engine"
	"whisperdesk/internal/util/format"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "models",
		Short:         "List model sizes, speed factors and installed files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := settingsFrom(cmd)
			factors := s.Factors()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Models dir: %s\n", s.ModelsDir)
			for _, size := range factors.Sizes() {
				mark := " "
				if size == s.Model {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-8s x%-4.1f %s\n", mark, size, factors.Factor(size), installed(s.ModelsDir, size))
			}
			return nil
		},
	}
}

// installed describes the first model file found for size.
func installed(dir, size string) string {
	for _, name := range engine.ModelFileNames(size) {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err == nil && !fi.IsDir() {
			return fmt.Sprintf("%s (%s)", name, format.HumanizeBytes(fi.Size()))
		}
	}
	return "not installed"
}
