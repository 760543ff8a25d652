package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nithin8919/policyretrieval/internal/config"
	"github.com/nithin8919/policyretrieval/internal/output"
	"github.com/nithin8919/policyretrieval/internal/retrieval"
	"github.com/nithin8919/policyretrieval/internal/routing"
)

func newQueryCmd() *cobra.Command {
	var topK int
	var mode string
	var noInternet bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Run a single retrieval and print the ranked evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], topK, mode, noInternet, timeout)
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Trim results to at most N passages (0 = engine default)")
	cmd.Flags().StringVar(&mode, "mode", "", "Force a retrieval mode (qa, policy, framework, compliance, deepthink, brainstorm)")
	cmd.Flags().BoolVar(&noInternet, "no-internet", false, "Disable the internet leg for this query")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall command timeout")

	return cmd
}

func runQuery(cmd *cobra.Command, query string, topK int, mode string, noInternet bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	built, err := buildEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer built.Close()

	var override *routing.Override
	if mode != "" || noInternet {
		override = &routing.Override{}
		if mode != "" {
			m := retrieval.Mode(mode)
			override.Mode = &m
		}
		if noInternet {
			f := false
			override.UseInternet = &f
		}
	}

	out, err := built.engine.Retrieve(ctx, query, topK, override)
	if err != nil {
		w := output.New(cmd.ErrOrStderr())
		w.Errorf("retrieval failed: %v", err)
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
