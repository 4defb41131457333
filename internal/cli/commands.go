package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/availcache"
)

const (
	flagDirect = "direct"
	flagOutput = "output"
)

func newResolveCmd(a *app) *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "resolve {entity-id} [display-name]",
		Short: "Resolve one entity and print the response",
		Args:  cobra.RangeArgs(1, 2),
		Example: strings.TrimSpace(`
availcache resolve 367520 "Hollow Knight"
availcache resolve 99999 --direct
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := requestFromArgs(args)
			return a.run(cmd, func(ctx context.Context, eng *availcache.Engine) error {
				if direct {
					res, err := eng.Resolve(ctx, req.EntityID, req.DisplayName)
					return printResponse(cmd, availcache.NewResponse(res, err))
				}
				return printResponse(cmd, eng.Handle(ctx, req))
			})
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().BoolVar(&direct, flagDirect, false, "bypass the batch coordinator")
	return cmd
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh {entity-id} [display-name]",
		Short: "Drop the stored entry and resolve it again from the top",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := requestFromArgs(args)
			return a.run(cmd, func(ctx context.Context, eng *availcache.Engine) error {
				return printResponse(cmd, eng.HandleRefresh(ctx, req))
			})
		},
		DisableAutoGenTag: true,
	}
}

func newBatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "batch [entity-id[=display-name]...]",
		Short: "Resolve many entities in one batch",
		Long: `Resolve many entities in one batch. Without arguments a batch request
document {"entities":[{"entityId":"..","displayName":".."}]} is read from stdin.`,
		Example: strings.TrimSpace(`
availcache batch 367520="Hollow Knight" 99999=Celeste 42
echo '{"entities":[{"entityId":"42"}]}' | availcache batch
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := batchRequest(cmd, args)
			if err != nil {
				return err
			}
			return a.run(cmd, func(ctx context.Context, eng *availcache.Engine) error {
				resp := eng.HandleBatch(ctx, req)
				if err := printJSON(cmd, resp); err != nil {
					return err
				}
				if !resp.Success {
					return errors.New(resp.Error)
				}
				return nil
			})
		},
		DisableAutoGenTag: true,
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get {entity-id}",
		Short: "Show the stored entry, stale or not, without resolving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, eng *availcache.Engine) error {
				l, err := eng.Store().GetWithStaleness(ctx, args[0])
				if err != nil {
					return fmt.Errorf("reading entry failed: %w", err)
				}
				out := struct {
					Found bool              `json:"found"`
					Stale bool              `json:"stale"`
					Entry *availcache.Entry `json:"entry,omitempty"`
				}{Found: l.Found, Stale: l.Stale}
				if l.Found {
					out.Entry = &l.Entry
				}
				return printJSON(cmd, out)
			})
		},
		DisableAutoGenTag: true,
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count stored entries and how many are stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, eng *availcache.Engine) error {
				st, err := eng.Stats(ctx)
				if err != nil {
					return fmt.Errorf("collecting stats failed: %w", err)
				}
				return printJSON(cmd, st)
			})
		},
		DisableAutoGenTag: true,
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry of the configured namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, eng *availcache.Engine) error {
				n, err := eng.Clear(ctx)
				if err != nil {
					return fmt.Errorf("clearing store failed after %d entries: %w", n, err)
				}
				return printJSON(cmd, map[string]int{"removed": n})
			})
		},
		DisableAutoGenTag: true,
	}
}

func newFixturesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Work with static provider fixtures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		DisableAutoGenTag: true,
	}

	var output string
	export := &cobra.Command{
		Use:   "export {provider}",
		Short: "Write the records of a configured static provider as a protobuf snapshot",
		Long: `Write the records of a configured static provider as a protobuf snapshot
that other configs can load through fixtureFile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			p, err := cfg.StaticProvider(args[0])
			if err != nil {
				return err
			}
			b, err := p.MarshalFixtures()
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			return os.WriteFile(output, b, 0o644)
		},
		DisableAutoGenTag: true,
	}
	export.Flags().StringVarP(&output, flagOutput, "o", "", "output file; stdout when empty")
	cmd.AddCommand(export)
	return cmd
}

func requestFromArgs(args []string) availcache.Request {
	req := availcache.Request{EntityID: args[0]}
	if len(args) > 1 {
		req.DisplayName = args[1]
	}
	return req
}

func batchRequest(cmd *cobra.Command, args []string) (availcache.BatchRequest, error) {
	var req availcache.BatchRequest
	if len(args) == 0 {
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(&req); err != nil {
			return req, fmt.Errorf("reading batch request from stdin failed: %w", err)
		}
		return req, nil
	}
	for _, arg := range args {
		id, name, _ := strings.Cut(arg, "=")
		if id == "" {
			return req, fmt.Errorf("invalid entity %q: empty id", arg)
		}
		req.Entities = append(req.Entities, availcache.Request{EntityID: id, DisplayName: name})
	}
	return req, nil
}

// printResponse prints resp and turns an unsuccessful one into the command's
// error so the exit status reflects it.
func printResponse(cmd *cobra.Command, resp availcache.Response) error {
	if err := printJSON(cmd, resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}
