package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TimelordUK/mview/internal/config"
	"github.com/TimelordUK/mview/internal/logging"
	"github.com/TimelordUK/mview/internal/ui"
)

func main() {
	var (
		configPath   string
		follow       bool
		exportPath   string
		exportPrefix bool
	)

	root := &cobra.Command{
		Use:   "mview <file>...",
		Short: "Chronologically merged viewer for multiple log files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			interactive := exportPath == ""
			if _, err := logging.Setup(interactive, logging.ParseLevel(cfg.Logging.Level)); err != nil {
				return fmt.Errorf("set up logging: %w", err)
			}

			model, err := ui.NewModel(args, cfg)
			if err != nil {
				return err
			}
			defer model.Close()

			if exportPath != "" {
				// Headless: index once, write the merged stream, done.
				model.Update(ui.ForceTick())
				res, err := model.Export(exportPath, exportPrefix)
				if err != nil {
					return err
				}
				fmt.Printf("exported %s lines (%s) to %s\n",
					humanize.Comma(int64(res.Lines)), humanize.Bytes(uint64(res.Bytes)), exportPath)
				return nil
			}

			if follow {
				model.SetFollowing(true)
			}

			p := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file")
	root.Flags().BoolVarP(&follow, "follow", "f", false, "start pinned to the newest line")
	root.Flags().StringVar(&exportPath, "export", "", "write the merged stream to a file and exit")
	root.Flags().BoolVar(&exportPrefix, "export-prefix", false, "prefix exported lines with [source:line]")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
