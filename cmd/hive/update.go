package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blang/semver"
	"github.com/charmbracelet/huh"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const releaseRepo = "blackcoderx/hive"

var updateYes bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update HIVE to the latest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if version == "dev" {
			fmt.Println("You are running a development version of HIVE. Update is not supported.")
			return nil
		}

		v, err := semver.Parse(strings.TrimPrefix(version, "v"))
		if err != nil {
			return fmt.Errorf("parse current version %q: %w", version, err)
		}

		latest, found, err := selfupdate.DetectLatest(releaseRepo)
		if err != nil {
			return fmt.Errorf("detect latest version: %w", err)
		}
		if !found || latest.Version.LTE(v) {
			fmt.Println("Current version is the latest")
			return nil
		}

		if !updateYes {
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Update from %s to %s?", v, latest.Version)).
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				return nil
			}
		}

		exe, err := os.Executable()
		if err != nil {
			return errors.New("could not locate executable path")
		}
		if err := selfupdate.UpdateTo(latest.AssetURL, exe); err != nil {
			return fmt.Errorf("update binary: %w", err)
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("✓ Updated to version %s", latest.Version)))
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVarP(&updateYes, "yes", "y", false, "update without asking")
}
