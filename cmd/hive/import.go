package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackcoderx/hive/pkg/importer"
	"github.com/blackcoderx/hive/pkg/storage"
)

var importIntoEnv string

var importCmd = &cobra.Command{
	Use:   "import <postman-collection.json>",
	Short: "Import a Postman v2.1 collection into the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := importer.ImportFile(ctx, args[0], a.nodes)
		if err != nil {
			return err
		}
		a.logger.Info("imported collection", "collection_id", res.CollectionID, "items", res.Imported, "failed", len(res.Errors))

		fmt.Println(okStyle.Render(fmt.Sprintf("✓ Imported %q (%d items) as %s", res.Name, res.Imported, res.CollectionID)))
		for _, msg := range res.Errors {
			fmt.Println(warnStyle.Render("  skipped " + msg))
		}

		if importIntoEnv != "" && len(res.Variables) > 0 {
			if err := mergeVariables(ctx, a.vars, importIntoEnv, res.Variables); err != nil {
				return err
			}
			fmt.Println(okStyle.Render(fmt.Sprintf("✓ Added %d collection variables to environment %s", len(res.Variables), importIntoEnv)))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importIntoEnv, "into-env", "", "copy collection variables into this environment (created if missing)")
}

// mergeVariables writes values into environment id, creating it when it does
// not exist. Existing keys are overwritten.
func mergeVariables(ctx context.Context, store variableStore, id string, values storage.Values) error {
	env, err := store.Environment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		env = &storage.Environment{ID: id, Name: id, Values: storage.Values{}}
	} else if err != nil {
		return err
	}
	if env.Values == nil {
		env.Values = storage.Values{}
	}
	maps.Copy(env.Values, values)
	env.UpdatedAt = time.Now().UTC()
	return store.SaveEnvironment(ctx, env)
}
