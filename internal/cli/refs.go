package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/HendryAvila/substrate/internal/refs"
	"github.com/HendryAvila/substrate/internal/templates"
	"github.com/HendryAvila/substrate/internal/value"
	"github.com/spf13/cobra"
)

// NewRefsCommand creates the refs command group.
func NewRefsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refs",
		Short: "Manage stored references",
	}
	cmd.AddCommand(newRefsListCommand(rootOpts))
	cmd.AddCommand(newRefsGetCommand(rootOpts))
	cmd.AddCommand(newRefsPutCommand(rootOpts))
	cmd.AddCommand(newRefsDeleteCommand(rootOpts))
	return cmd
}

func (o *RootOptions) refStore() (*refs.FileStore, error) {
	cfg, err := o.Config()
	if err != nil {
		return nil, err
	}
	return refs.NewFileStore(cfg.RefsDir), nil
}

func newRefsListCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List references, optionally under a name prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.refStore()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			list, err := store.List(prefix)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, list)
			}
			for _, s := range list {
				format := "yaml"
				if s.FormatVersion == refs.LegacyFormat {
					format = "json (legacy)"
				}
				fmt.Fprintf(out, "%s\t%d\t%s\n", s.Name, s.Size, format)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newRefsGetCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		asJSON bool
		vars   []string
	)
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a reference, filling placeholders from --var",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.refStore()
			if err != nil {
				return err
			}
			ref, err := store.Get(args[0])
			if err != nil {
				return err
			}
			values, err := parsePairs(vars)
			if err != nil {
				return err
			}
			ref.Content = templates.Resolve(ref.Content, values)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, ref)
			}
			fmt.Fprintln(out, ref.Content)
			if ph := templates.Placeholders(ref.Content); len(ph) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "unresolved placeholders: %s\n", strings.Join(ph, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full record as JSON")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "placeholder value as key=value (repeatable)")
	return cmd
}

func newRefsPutCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		file    string
		content string
		meta    []string
	)
	cmd := &cobra.Command{
		Use:   "put <name>",
		Short: "Create or replace a reference from --content, --file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.refStore()
			if err != nil {
				return err
			}
			body := content
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading %s: %w", file, err)
				}
				body = string(data)
			case body == "":
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				body = string(data)
			}
			if body == "" {
				return fmt.Errorf("reference content is empty")
			}

			pairs, err := parsePairs(meta)
			if err != nil {
				return err
			}
			metadata, err := value.MapFromAny(pairs)
			if err != nil {
				return err
			}
			ref, err := store.Put(args[0], body, metadata)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d chars)\n", ref.Name, len(ref.Content))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read content from file")
	cmd.Flags().StringVar(&content, "content", "", "reference content")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata entry as key=value (repeatable)")
	return cmd
}

func newRefsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.refStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

// parsePairs turns key=value flags into a map. Values that parse as JSON
// (numbers, booleans, arrays, objects) keep their type.
func parsePairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid pair %q: want key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil && decoded != nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
