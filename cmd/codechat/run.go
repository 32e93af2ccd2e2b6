package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nstogner/codechat/pkg/sandbox"
)

var errRunFailed = errors.New("code did not run cleanly")

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "Run a JavaScript snippet in the sandbox and print the captured output",
	Long: `Run reads a snippet from a file, or from stdin when the argument is "-" or
missing, runs it in the configured sandbox and prints the contents of the
#output element.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(cmd.ErrOrStderr(), cfg.SlogLevel())

		code, err := readSource(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		exec, err := buildExecutor(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer exec.Close()

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " running"
		s.Start()
		out := exec.Run(cmd.Context(), code)
		s.Stop()

		w := cmd.OutOrStdout()
		if strings.HasPrefix(out, sandbox.ErrorMarker) || strings.Contains(out, `class="sandbox-error"`) {
			color.New(color.FgRed, color.Bold).Fprintln(w, out)
			return errRunFailed
		}
		if out == sandbox.NoOutput {
			color.New(color.FgYellow).Fprintln(w, out)
			return nil
		}
		fmt.Fprintln(w, out)
		return nil
	},
}

func readSource(stdin io.Reader, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no code to run")
	}
	return string(data), nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
