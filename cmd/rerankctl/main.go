// Command rerankctl exercises the search pipeline from the terminal:
// one-off searches, batches, health probes and the model catalog.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rerank-orchestrator/internal/client"
	"rerank-orchestrator/internal/domain"
	"rerank-orchestrator/internal/infra/config"
	"rerank-orchestrator/internal/infra/logger"
	"rerank-orchestrator/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type searchFlags struct {
	index    string
	topK     int
	filters  []string
	noRerank bool
	debug    bool
}

// cfgFile is the --config env file; empty means environment plus .env.
var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rerankctl",
		Short:         "Search with two-stage retrieval and reranking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "env file to load configuration from")
	root.AddCommand(newSearchCmd(), newBatchCmd(), newHealthCmd(), newModelsCmd(), newConfigCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

func newClient() (*client.Client, error) {
	if cfgFile == "" {
		return client.NewFromEnv(logger.New())
	}
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}
	return client.New(cfg, logger.New())
}

func newSearchCmd() *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one search query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			input, err := buildInput(args[0], flags)
			if err != nil {
				return err
			}
			resp, err := c.Search(cmd.Context(), input)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
	addSearchFlags(cmd, &flags)
	return cmd
}

func newBatchCmd() *cobra.Command {
	var flags searchFlags
	var file string
	cmd := &cobra.Command{
		Use:   "batch [query ...]",
		Short: "Run several queries concurrently",
		Long:  "Run several queries concurrently. Queries come from the arguments, or one per line from --file (use - for stdin).",
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := args
			if file != "" {
				fromFile, err := readQueries(file)
				if err != nil {
					return err
				}
				queries = append(queries, fromFile...)
			}
			if len(queries) == 0 {
				return fmt.Errorf("no queries given")
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			inputs := make([]usecase.SearchInput, len(queries))
			for i, q := range queries {
				input, err := buildInput(q, flags)
				if err != nil {
					return err
				}
				inputs[i] = input
			}

			results := c.SearchBatch(cmd.Context(), inputs)
			out := make([]map[string]any, len(results))
			for i, r := range results {
				entry := map[string]any{"query": queries[i]}
				if r.Err != nil {
					entry["error"] = r.Err.Error()
				} else {
					entry["response"] = r.Response
				}
				out[i] = entry
			}
			return printJSON(out)
		},
	}
	addSearchFlags(cmd, &flags)
	cmd.Flags().StringVarP(&file, "file", "f", "", "read queries from file, one per line (- for stdin)")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the search engine and the reranking service",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			status := c.Health(cmd.Context())
			if err := printJSON(status); err != nil {
				return err
			}
			if status.Status != domain.HealthHealthy {
				os.Exit(2)
			}
			return nil
		},
	}
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the reranking service's model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			models, err := c.Models(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(models)
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg.Redacted())
		},
	})
	cmd.AddCommand(newConfigTemplateCmd())
	return cmd
}

const envTemplate = `# rerank-orchestrator configuration template.
# Copy to .env (or pass via --config) and fill in the credentials.

# Reranking service
RERANK_API_KEY=
RERANK_BASE_URL=https://api.zeroentropy.dev/v1
RERANK_MODEL=zerank-1
RERANK_TIMEOUT=30s
RERANK_MAX_RETRIES=3
RERANK_RETRY_DELAY=1s

# Search engine
MEILI_URL=http://localhost:7700
MEILI_API_KEY=
MEILI_TIMEOUT=30s

# Ranking defaults (top_k_final <= top_k_rerank <= top_k_initial)
TOP_K_INITIAL=100
TOP_K_RERANK=20
TOP_K_FINAL=10
COMBINE_SCORES=true
RETRIEVAL_WEIGHT=0.3
RERANK_WEIGHT=0.7

# Outbound limits, shared by all searches through one client
MAX_CONCURRENT_REQUESTS=10
REQUESTS_PER_MINUTE=1000
CONNECTION_POOL_SIZE=20

LOG_LEVEL=info
`

func newConfigTemplateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write a commented configuration template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				_, err := fmt.Print(envTemplate)
				return err
			}
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", output)
			}
			return os.WriteFile(output, []byte(envTemplate), 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the template to a file instead of stdout")
	return cmd
}

func addSearchFlags(cmd *cobra.Command, flags *searchFlags) {
	cmd.Flags().StringVarP(&flags.index, "index", "i", "", "index to search (required)")
	cmd.Flags().IntVarP(&flags.topK, "top-k", "k", 0, "number of final results (default from config)")
	cmd.Flags().StringSliceVar(&flags.filters, "filter", nil, "equality filter, key=value (repeatable)")
	cmd.Flags().BoolVar(&flags.noRerank, "no-rerank", false, "rank by retrieval score only")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "include per-stage scores in the output")
	_ = cmd.MarkFlagRequired("index")
}

func buildInput(query string, flags searchFlags) (usecase.SearchInput, error) {
	input := usecase.SearchInput{
		Query:            query,
		Index:            flags.index,
		DisableReranking: flags.noRerank,
		Debug:            flags.debug,
	}
	if len(flags.filters) > 0 {
		filters := make(map[string]any, len(flags.filters))
		for _, f := range flags.filters {
			key, value, ok := strings.Cut(f, "=")
			if !ok {
				return usecase.SearchInput{}, fmt.Errorf("malformed filter %q, want key=value", f)
			}
			filters[key] = value
		}
		input.Filters = filters
	}
	if flags.topK > 0 {
		cfg, err := loadConfig()
		if err != nil {
			return usecase.SearchInput{}, err
		}
		sc := cfg.SearchConfig()
		sc.TopKFinal = flags.topK
		if sc.TopKRerank < sc.TopKFinal {
			sc.TopKRerank = sc.TopKFinal
		}
		if sc.TopKInitial < sc.TopKRerank {
			sc.TopKInitial = sc.TopKRerank
		}
		input.Config = &sc
	}
	return input, nil
}

func readQueries(path string) ([]string, error) {
	var r *os.File
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			queries = append(queries, line)
		}
	}
	return queries, scanner.Err()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
