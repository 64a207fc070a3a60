package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	spyerrors "github.com/danpilch/stackspy/pkg/errors"
	"github.com/danpilch/stackspy/pkg/procfs"
	"github.com/danpilch/stackspy/pkg/sampler"
)

const permissionHint = `Permission Denied: Try running again with elevated permissions by going 'sudo env "PATH=$PATH" !!'`

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

func main() {
	if err := newRootCommand(attachProcess).Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// attachProcess attaches through /proc.
func attachProcess(pid int) (sampler.Target, error) {
	p, err := procfs.Attach(pid)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newRootCommand(attach sampler.AttachFunc) *cobra.Command {
	var verbose bool
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	root := &cobra.Command{
		Use:           "stackspy",
		Short:         "Sampling profiler for running processes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		registerRecordCommand(attach, logger),
		registerDumpCommand(attach, logger),
		registerGenerateCommand(logger),
	)
	return root
}

// printError reports a failed command. Permission failures get a hint on
// how to rerun; everything else prints the error and each wrapped cause.
func printError(w io.Writer, err error) {
	if spyerrors.PermissionDenied(err) {
		fmt.Fprintln(w, errorStyle.Render(permissionHint))
		return
	}
	chain := spyerrors.Chain(err)
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Error:"), chain[0])
	for _, reason := range chain[1:] {
		fmt.Fprintf(w, "Reason: %s\n", reason)
	}
}
