package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nithin8919/policyretrieval/internal/config"
	"github.com/nithin8919/policyretrieval/internal/embed"
	"github.com/nithin8919/policyretrieval/internal/output"
)

// checkResult is one doctor check's outcome.
type checkResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Detail  string `json:"detail"`
	Warning bool   `json:"warning"`
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the configured deployment can serve queries",
		Long: `Run diagnostics against the effective configuration:
  - configuration loads and validates
  - the configured embedder is reachable
  - the configured index backend can be constructed
  - the internet leg, if enabled, has a host configured
  - the clause index path, if enabled, is reported (the index is not opened)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	ctx := cmd.Context()
	results := runChecks(ctx)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	w := output.New(cmd.OutOrStdout())
	failed := false
	for _, r := range results {
		switch {
		case r.Passed:
			w.Successf("%s: %s", r.Name, r.Detail)
		case r.Warning:
			w.Warningf("%s: %s", r.Name, r.Detail)
		default:
			w.Errorf("%s: %s", r.Name, r.Detail)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("one or more checks failed")
	}
	return nil
}

func runChecks(ctx context.Context) []checkResult {
	var results []checkResult

	cfg, err := config.Load(configDir)
	if err != nil {
		return []checkResult{{Name: "config", Passed: false, Detail: err.Error()}}
	}
	results = append(results, checkResult{Name: "config", Passed: true, Detail: "loaded and valid"})

	index, err := buildIndexClient(cfg)
	if err != nil {
		results = append(results, checkResult{Name: "index_backend", Passed: false, Detail: err.Error()})
	} else {
		results = append(results, checkResult{Name: "index_backend", Passed: true, Detail: string(cfg.Index.Backend)})
		_ = index.Close()
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embedding.Provider), cfg.Embedding.Model)
	if err != nil {
		results = append(results, checkResult{Name: "embedder", Passed: false, Detail: err.Error()})
	} else {
		available := embedder.Available(ctx)
		_ = embedder.Close()
		results = append(results, checkResult{
			Name:   "embedder",
			Passed: available,
			Detail: fmt.Sprintf("provider=%s model=%s available=%v", cfg.Embedding.Provider, embedder.ModelName(), available),
		})
	}

	if cfg.Internet.Enabled {
		if cfg.Internet.Host == "" {
			results = append(results, checkResult{Name: "internet", Passed: true, Warning: true, Detail: "enabled but no host configured, leg will always degrade to empty"})
		} else {
			results = append(results, checkResult{Name: "internet", Passed: true, Detail: cfg.Internet.Host})
		}
	} else {
		results = append(results, checkResult{Name: "internet", Passed: true, Detail: "disabled"})
	}

	if cfg.ClauseIndex.Enabled {
		results = append(results, checkResult{Name: "clause_index", Passed: true, Detail: cfg.ClauseIndex.Path})
	} else {
		results = append(results, checkResult{Name: "clause_index", Passed: true, Detail: "disabled"})
	}

	return results
}
