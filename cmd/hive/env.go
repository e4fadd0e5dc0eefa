package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aymanbagabas/go-udiff"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blackcoderx/hive/pkg/storage"
)

var (
	envSetTarget   string
	envSetGlobal   bool
	envSetDisabled bool
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage environments",
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List environments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		envs, err := a.vars.ListEnvironments(ctx)
		if err != nil {
			return err
		}
		active := viper.GetString("active_environment")
		for _, env := range envs {
			line := fmt.Sprintf("  %s (%s) %d variables", env.ID, env.Name, len(env.Values))
			if env.ID == active {
				line = okStyle.Render("* " + strings.TrimPrefix(line, "  "))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var envUseCmd = &cobra.Command{
	Use:   "use [id]",
	Short: "Set the active environment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var id string
		if len(args) == 1 {
			id = args[0]
			if _, err := a.vars.Environment(ctx, id); err != nil {
				return fmt.Errorf("environment %s: %w", id, err)
			}
		} else {
			if id, err = pickEnvironment(ctx, a.vars); err != nil {
				return err
			}
		}

		viper.Set("active_environment", id)
		if err := viper.WriteConfig(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println(okStyle.Render("✓ Active environment: " + id))
		return nil
	},
}

var envSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a variable in an environment or the globals",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		v := storage.Variable{Value: args[1], Enabled: !envSetDisabled}

		if envSetGlobal {
			before, err := a.vars.GlobalValues(ctx)
			if err != nil {
				return err
			}
			if err := a.vars.SetGlobal(ctx, args[0], v); err != nil {
				return err
			}
			after := before.Clone()
			after[args[0]] = v
			fmt.Print(valuesDiff("globals", before, after))
			return nil
		}

		id := activeEnvironment(envSetTarget)
		if id == "" {
			return errors.New("no active environment, pass --env")
		}
		env, err := a.vars.Environment(ctx, id)
		if err != nil {
			return fmt.Errorf("environment %s: %w", id, err)
		}
		before := env.Values.Clone()
		if env.Values == nil {
			env.Values = storage.Values{}
		}
		env.Values[args[0]] = v
		env.UpdatedAt = time.Now().UTC()
		if err := a.vars.SaveEnvironment(ctx, env); err != nil {
			return err
		}
		fmt.Print(valuesDiff(id, before, env.Values))
		return nil
	},
}

func init() {
	envSetCmd.Flags().StringVarP(&envSetTarget, "env", "e", "", "environment to change (default is the active environment)")
	envSetCmd.Flags().BoolVarP(&envSetGlobal, "global", "g", false, "set a global variable instead")
	envSetCmd.Flags().BoolVar(&envSetDisabled, "disabled", false, "store the variable disabled")

	envCmd.AddCommand(envListCmd, envUseCmd, envSetCmd)
}

func pickEnvironment(ctx context.Context, store variableStore) (string, error) {
	envs, err := store.ListEnvironments(ctx)
	if err != nil {
		return "", err
	}
	if len(envs) == 0 {
		return "", errors.New("no environments found")
	}

	options := make([]huh.Option[string], 0, len(envs))
	for _, env := range envs {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", env.Name, env.ID), env.ID))
	}
	id := viper.GetString("active_environment")
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which environment should be active?").
				Options(options...).
				Value(&id),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return id, nil
}

// valuesDiff renders a unified diff of two variable sets, one key=value line
// per variable.
func valuesDiff(name string, before, after storage.Values) string {
	original, modified := valuesText(before), valuesText(after)
	edits := udiff.Strings(original, modified)
	unified, err := udiff.ToUnified("a/"+name, "b/"+name, original, edits, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: diff generation failed: %v\n", err)
		return ""
	}
	var sb strings.Builder
	for _, line := range strings.SplitAfter(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			sb.WriteString(okStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			sb.WriteString(errorStyle.Render(strings.TrimSuffix(line, "\n")) + "\n")
		default:
			sb.WriteString(line)
		}
	}
	return sb.String()
}

func valuesText(values storage.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v := values[k]
		if v.Enabled {
			fmt.Fprintf(&sb, "%s=%s\n", k, v.Value)
		} else {
			fmt.Fprintf(&sb, "# %s=%s\n", k, v.Value)
		}
	}
	return sb.String()
}
