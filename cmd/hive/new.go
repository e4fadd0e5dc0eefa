package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blackcoderx/hive/pkg/storage"
)

var (
	newParent string
	newMethod string
	newURL    string
	newBody   string
	newPre    string
	newPost   string
	newOrder  int
)

var newCmd = &cobra.Command{
	Use:   "new <collection|folder|request> <name>",
	Short: "Create a collection, folder or request node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		kind := storage.Kind(strings.ToLower(args[0]))
		switch kind {
		case storage.KindCollection:
			if newParent != "" {
				return errors.New("a collection cannot have a parent")
			}
		case storage.KindFolder, storage.KindRequest:
			if newParent == "" {
				return fmt.Errorf("a %s needs --parent", kind)
			}
			if _, err := a.nodes.Node(ctx, newParent); err != nil {
				return fmt.Errorf("parent %s: %w", newParent, err)
			}
		default:
			return fmt.Errorf("unknown node kind %q", args[0])
		}

		node := &storage.Node{
			ID:       uuid.NewString(),
			ParentID: newParent,
			Kind:     kind,
			Name:     args[1],
			Order:    newOrder,
		}
		if node.PreScript, err = scriptArg(newPre); err != nil {
			return err
		}
		if node.PostScript, err = scriptArg(newPost); err != nil {
			return err
		}
		if kind == storage.KindRequest {
			node.Method = strings.ToUpper(newMethod)
			node.URL = newURL
			node.Body = storage.Body{Mode: storage.BodyNone}
			if newBody != "" {
				node.Body = storage.Body{Mode: storage.BodyRaw, Raw: newBody}
			}
		}

		if err := a.nodes.SaveNode(ctx, node); err != nil {
			return err
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("✓ Created %s %q", kind, node.Name)))
		fmt.Println(node.ID)
		return nil
	},
}

func init() {
	newCmd.Flags().StringVarP(&newParent, "parent", "p", "", "parent node id")
	newCmd.Flags().StringVarP(&newMethod, "method", "X", "GET", "request method")
	newCmd.Flags().StringVarP(&newURL, "url", "u", "", "request URL, may contain {{variables}}")
	newCmd.Flags().StringVarP(&newBody, "data", "d", "", "raw request body")
	newCmd.Flags().StringVar(&newPre, "pre", "", "pre-request script, or @file to read it from a file")
	newCmd.Flags().StringVar(&newPost, "post", "", "post-request script, or @file to read it from a file")
	newCmd.Flags().IntVar(&newOrder, "order", 0, "position among siblings")
}

// scriptArg returns v, or the content of the file when v starts with @.
func scriptArg(v string) (string, error) {
	path, ok := strings.CutPrefix(v, "@")
	if !ok {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}
