package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackcoderx/hive/pkg/runner"
	"github.com/blackcoderx/hive/pkg/workspace"
)

var (
	runEnv           string
	runInsecure      bool
	runStopOnFailure bool
	runRPS           int
	runSave          bool
)

var runCmd = &cobra.Command{
	Use:   "run <collection-or-folder-id>",
	Short: "Send every request below a collection or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.runner.Run(ctx, runner.Params{
			RootID:            args[0],
			EnvironmentID:     activeEnvironment(runEnv),
			SSLVerify:         sslVerify(runInsecure),
			StopOnFailure:     runStopOnFailure,
			RequestsPerSecond: runRPS,
		})
		if err != nil {
			return err
		}

		render(os.Stdout, codeBlock("", runner.Format(res)))

		if runSave {
			path, err := runner.Save(workspace.RunsDir(workspace.FolderName), res)
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("Saved results to " + path))
		}
		if res.Failed > 0 {
			return fmt.Errorf("%d of %d requests failed", res.Failed, res.Total)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runEnv, "env", "e", "", "environment to use (default is the active environment)")
	runCmd.Flags().BoolVarP(&runInsecure, "insecure", "k", false, "skip TLS certificate verification")
	runCmd.Flags().BoolVar(&runStopOnFailure, "stop-on-failure", false, "stop at the first failing request")
	runCmd.Flags().IntVar(&runRPS, "rps", 0, "maximum requests per second (0 is unlimited)")
	runCmd.Flags().BoolVar(&runSave, "save", false, "save the results under .hive/runs")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
