package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/blackcoderx/hive/pkg/orchestrator"
)

var (
	sendEnv      string
	sendInsecure bool
	sendCopy     bool
	sendJSON     bool
)

var sendCmd = &cobra.Command{
	Use:   "send <node-id>",
	Short: "Send a saved request with its script chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.orch.Execute(ctx, args[0], activeEnvironment(sendEnv), sslVerify(sendInsecure))
		if res == nil {
			return err
		}
		if sendJSON {
			if encErr := writeJSON(os.Stdout, res); encErr != nil {
				return encErr
			}
		} else {
			printResult(res)
		}

		if sendCopy && res.Response != nil {
			if cpErr := clipboard.WriteAll(res.Response.BodyText); cpErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to copy response: %v\n", cpErr)
			}
		}
		return err
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendEnv, "env", "e", "", "environment to use (default is the active environment)")
	sendCmd.Flags().BoolVarP(&sendInsecure, "insecure", "k", false, "skip TLS certificate verification")
	sendCmd.Flags().BoolVar(&sendCopy, "copy", false, "copy the response body to the clipboard")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "print the result as JSON")
}

func printResult(res *orchestrator.Result) {
	printConsole(os.Stdout, res.Console)

	if res.ChainFault != "" {
		fmt.Println(warnStyle.Render("Script chain incomplete: " + res.ChainFault))
	}
	if res.Response == nil {
		fmt.Println(errorStyle.Render("Request not sent: pre-request script failed: " + res.ScriptError))
		return
	}
	if res.TransportError != "" {
		fmt.Println(errorStyle.Render("Request failed: " + res.TransportError))
	}

	var md strings.Builder
	if res.Request != nil {
		md.WriteString(fmt.Sprintf("**%s** `%s`\n\n", res.Request.Method, res.Request.URL))
	}
	md.WriteString(codeBlock("", res.Response.Format()))
	render(os.Stdout, md.String())

	if len(res.EnvUpdates) > 0 {
		keys := make([]string, 0, len(res.EnvUpdates))
		for k := range res.EnvUpdates {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println(okStyle.Render("Environment updated: " + strings.Join(keys, ", ")))
	}
}
