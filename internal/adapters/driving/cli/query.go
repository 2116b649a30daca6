package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
)

var (
	flagK                 int
	flagGapThreshold      float64
	flagDistanceThreshold float64
	flagMaxIterations     int
	flagNoFilter          bool
	flagJSON              bool
	flagShowText          bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve relevant passages for a question",
	Long: `Retrieve the passages most relevant to a natural-language question.

Candidates whose relevance predicates reject the question are filtered
out and replaced by re-querying the index, and the final result set is
cut off where the similarity distances show a sharp discontinuity.

With no question argument, reads questions interactively from stdin
until EOF or "quit".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRetrieval(); err != nil {
			return err
		}

		opts := queryOptions(cmd)

		if len(args) == 1 {
			return runQuery(cmd, args[0], opts)
		}
		return runInteractive(cmd, opts)
	},
}

func init() {
	queryCmd.Flags().IntVarP(&flagK, "k", "k", 0,
		"maximum number of results (default from config, then 15)")
	queryCmd.Flags().Float64Var(&flagGapThreshold, "gap-threshold", 0,
		"minimum distance jump treated as a relevance cliff")
	queryCmd.Flags().Float64Var(&flagDistanceThreshold, "distance-threshold", 0,
		"distance margin over the best result when no cliff is found")
	queryCmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0,
		"maximum predicate-filtering re-query rounds")
	queryCmd.Flags().BoolVar(&flagNoFilter, "no-filter", false,
		"skip predicate filtering and return raw similarity results")
	queryCmd.Flags().BoolVar(&flagJSON, "json", false,
		"emit results as JSON")
	queryCmd.Flags().BoolVar(&flagShowText, "show-text", false,
		"include passage text in table output")
	rootCmd.AddCommand(queryCmd)
}

// queryOptions resolves retrieval options from config values and flags.
// Flags win over config, config wins over built-in defaults.
func queryOptions(cmd *cobra.Command) domain.RetrievalOptions {
	opts := domain.RetrievalOptions{
		K:                 configStore.GetInt("retrieval.k"),
		GapThreshold:      configStore.GetFloat("retrieval.gap_threshold"),
		DistanceThreshold: configStore.GetFloat("retrieval.distance_threshold"),
		MaxIterations:     configStore.GetInt("retrieval.max_iterations"),
	}

	if cmd.Flags().Changed("k") {
		opts.K = flagK
	}
	if cmd.Flags().Changed("gap-threshold") {
		opts.GapThreshold = flagGapThreshold
	}
	if cmd.Flags().Changed("distance-threshold") {
		opts.DistanceThreshold = flagDistanceThreshold
	}
	if cmd.Flags().Changed("max-iterations") {
		opts.MaxIterations = flagMaxIterations
	}
	if v, ok := configStore.Get("retrieval.filtering"); ok {
		if enabled, isBool := v.(bool); isBool && !enabled {
			opts.FilteringDisabled = true
		}
	}
	if flagNoFilter {
		opts.FilteringDisabled = true
	}

	return opts
}

func runQuery(cmd *cobra.Command, question string, opts domain.RetrievalOptions) error {
	result, err := retrievalService.Retrieve(cmd.Context(), question, opts)
	if err != nil {
		return err
	}

	if flagJSON {
		return printResultJSON(cmd, result)
	}
	printResultTable(cmd, result)
	return nil
}

func runInteractive(cmd *cobra.Command, opts domain.RetrievalOptions) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Enter a question (\"quit\" to exit).")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "quit" || question == "exit" {
			return nil
		}

		if err := runQuery(cmd, question, opts); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	}
}

func printResultJSON(cmd *cobra.Command, result *domain.RetrievalResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func printResultTable(cmd *cobra.Command, result *domain.RetrievalResult) {
	out := cmd.OutOrStdout()

	if len(result.Candidates) == 0 {
		fmt.Fprintln(out, "No results.")
	}
	for i, c := range result.Candidates {
		title := c.Title
		if title == "" {
			title = c.ID
		}
		fmt.Fprintf(out, "%2d. %-50s  distance %.4f\n", i+1, title, c.Distance)
		if flagShowText {
			fmt.Fprintf(out, "    %s\n", indentText(c.Text))
		}
	}

	d := result.Diagnostics
	fmt.Fprintf(out, "\n%d result(s), %s cutoff, %d filtering iteration(s), %d excluded, %dms\n",
		len(result.Candidates), d.Strategy, d.Iterations, d.TotalExcluded, d.ElapsedMS)
}

// indentText flattens a passage for table output, aligning wrapped lines.
func indentText(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), "\n", "\n    ")
}
