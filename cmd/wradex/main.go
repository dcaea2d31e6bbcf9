package main

import (
	"fmt"
	"io"
	"os"

	"github.com/snoopython/wradex/internal/config"
	"github.com/snoopython/wradex/internal/ctxlog"
	"github.com/spf13/cobra"
)

type app struct {
	out    io.Writer
	errOut io.Writer

	configFile string
	dataDir    string
	logLevel   string
	logFormat  string

	sets     []string
	preset   string
	progress bool
	plotFile string
	output   string
	watch    string
	noSave   bool

	xAxis   string
	pngFile string
	width   int
	height  int

	cfg *config.Config
}

// main is the entry point for the wradex CLI. It exits with status 1 when
// the command fails.
func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:           "wradex",
		Short:         "sweep the RADEX radiative transfer code over parameter grids",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(a.logLevel, a.logFormat, a.errOut)
			if err != nil {
				return err
			}
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file path (default ~/.wradex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.dataDir, "data", ".wradex", "directory for saved runs")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "log format (text, json)")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "write the default configuration file",
		Args:  cobra.NoArgs,
		RunE:  a.initConfig,
	}

	moleculesCmd := &cobra.Command{
		Use:   "molecules",
		Short: "list species in the molecular data catalog",
		Args:  cobra.NoArgs,
		RunE:  a.listMolecules,
	}

	transitionsCmd := &cobra.Command{
		Use:   "transitions [species]",
		Short: "list radiative transitions of a species",
		Args:  cobra.ExactArgs(1),
		RunE:  a.listTransitions,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list physical condition presets",
		Args:  cobra.NoArgs,
		RunE:  a.listPresets,
	}

	runCmd := &cobra.Command{
		Use:   "run [species] [transition]",
		Short: "sweep one transition over a parameter grid",
		Long: `Sweep one transition over the Cartesian grid of the solver parameters.

Parameters are overridden with --set name=value, where value is one of
  100 K                 scalar
  10,20,30 K            list
  10:100:10 K           10 evenly spaced values from 10 to 100
  log:1e3:1e6:4 cm^-3   4 logarithmically spaced values`,
		Args: cobra.ExactArgs(2),
		RunE: a.runSweep,
	}
	runCmd.Flags().StringArrayVar(&a.sets, "set", nil, "override a parameter, e.g. --set 'T_kin=10,20,30 K'")
	runCmd.Flags().StringVar(&a.preset, "preset", "", "start from a preset (see presets)")
	runCmd.Flags().BoolVar(&a.progress, "progress", false, "show a live progress view")
	runCmd.Flags().StringVar(&a.watch, "watch", "T_R", "output traced by the progress view")
	runCmd.Flags().StringVar(&a.plotFile, "plot", "", "write a PNG plot of --output against the first sweep axis")
	runCmd.Flags().StringVar(&a.output, "output", "T_R", "output drawn by --plot")
	runCmd.Flags().StringVar(&a.xAxis, "x", "", "parameter on the plot x axis")
	runCmd.Flags().BoolVar(&a.noSave, "no-save", false, "do not save the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  a.listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print the cell table of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  a.showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [output]",
		Short: "plot an output of a saved run",
		Args:  cobra.ExactArgs(2),
		RunE:  a.plotRun,
	}
	plotCmd.Flags().StringVar(&a.xAxis, "x", "", "parameter on the x axis (default: first sweep axis)")
	plotCmd.Flags().StringVar(&a.pngFile, "png", "", "write a PNG instead of an ASCII chart")
	plotCmd.Flags().IntVar(&a.width, "width", 70, "ASCII chart width")
	plotCmd.Flags().IntVar(&a.height, "height", 12, "ASCII chart height")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a saved run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  a.exportRun,
	}

	rootCmd.AddCommand(initCmd, moleculesCmd, transitionsCmd, presetsCmd, runCmd,
		listCmd, showCmd, plotCmd, exportCmd)
	return rootCmd
}
