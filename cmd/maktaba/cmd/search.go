package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maktaba-search/maktaba/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit       int
	corpora     string
	rerank      string
	refine      bool
	format      string // "text", "json"
	debugScores bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the library",
		Long: `Search passages, verses and narrations with hybrid retrieval.

Examples:
  maktaba search "الرحمة في القرآن"
  maktaba search "mercy of God" --corpora verses --limit 5
  maktaba search "شروط الصلاة" --refine --rerank cross_encoder
  maktaba search "صحيح البخاري" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd.OutOrStdout(), query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", search.DefaultLimit, "Maximum results per corpus")
	cmd.Flags().StringVarP(&opts.corpora, "corpora", "c", "", "Corpora to search: passages,verses,narrations (default all)")
	cmd.Flags().StringVarP(&opts.rerank, "rerank", "r", "none", "Rerank strategy: none, cross_encoder, llm_prompt")
	cmd.Flags().BoolVar(&opts.refine, "refine", false, "Expand the query into multiple phrasings and merge results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.debugScores, "debug-scores", false, "Include per-result match statistics")

	return cmd
}

func runSearch(ctx context.Context, out io.Writer, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	corpora, err := search.ParseCorpusFlags(opts.corpora)
	if err != nil {
		return err
	}
	strategy, err := search.ParseRerankStrategy(opts.rerank)
	if err != nil {
		return err
	}

	engine, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := engine.Search(ctx, query, search.Options{
		Limits: search.Limits{
			Passages:   opts.limit,
			Verses:     opts.limit,
			Narrations: opts.limit,
		},
		Corpora: corpora,
		Rerank:  strategy,
		Refine:  opts.refine,
		Debug:   opts.debugScores,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	printResults(out, results)
	return nil
}

func printResults(out io.Writer, res *search.Results) {
	if res.Total() == 0 {
		fmt.Fprintln(out, "No results.")
		return
	}

	if len(res.Expanded) > 1 {
		fmt.Fprintf(out, "Searched %d query phrasings:\n", len(res.Expanded))
		for _, eq := range res.Expanded {
			fmt.Fprintf(out, "  [%.2f] %s (%s)\n", eq.Weight, eq.Query, eq.Reason)
		}
		fmt.Fprintln(out)
	}

	if len(res.Passages) > 0 {
		fmt.Fprintf(out, "Passages (%d)\n", len(res.Passages))
		for i, f := range res.Passages {
			p := f.Payload
			header := fmt.Sprintf("book %d p.%d", p.BookID, p.PageNumber)
			if p.BookTitle != "" {
				header = fmt.Sprintf("%s p.%d", p.BookTitle, p.PageNumber)
				if p.AuthorName != "" {
					header += " — " + p.AuthorName
				}
			}
			fmt.Fprintf(out, "%3d. [%.3f] %s\n     %s\n", i+1, f.FusedScore, header, excerpt(p.DisplayText()))
		}
		fmt.Fprintln(out)
	}

	if len(res.Verses) > 0 {
		fmt.Fprintf(out, "Verses (%d)\n", len(res.Verses))
		for i, f := range res.Verses {
			v := f.Payload
			ref := fmt.Sprintf("%d:%d", v.BookNumber, v.VerseNumber)
			if v.ChapterName != "" {
				ref = fmt.Sprintf("%s %d", v.ChapterName, v.VerseNumber)
			}
			fmt.Fprintf(out, "%3d. [%.3f] %s\n     %s\n", i+1, f.FusedScore, ref, excerpt(v.DisplayText()))
		}
		fmt.Fprintln(out)
	}

	if len(res.Narrations) > 0 {
		fmt.Fprintf(out, "Narrations (%d)\n", len(res.Narrations))
		for i, f := range res.Narrations {
			n := f.Payload
			ref := fmt.Sprintf("collection %d #%d", n.CollectionID, n.NarrationNumber)
			if n.CollectionTitle != "" {
				ref = fmt.Sprintf("%s #%d", n.CollectionTitle, n.NarrationNumber)
			}
			if n.Grade != "" {
				ref += " (" + n.Grade + ")"
			}
			fmt.Fprintf(out, "%3d. [%.3f] %s\n     %s\n", i+1, f.FusedScore, ref, excerpt(n.DisplayText()))
		}
		fmt.Fprintln(out)
	}

	if res.RerankSkipped {
		note := "note: reranking was skipped; results are in fused order"
		if res.RerankTimedOut {
			note = "note: reranking timed out; results are in fused order"
		}
		fmt.Fprintln(out, note)
	}

	if res.Debug != nil {
		printDebug(out, res.Debug)
	}
}

func printDebug(out io.Writer, dbg *search.DebugReport) {
	fmt.Fprintf(out, "\nstrategy=%s cutoff=%.2f skip_semantic=%v quoted=%v\n",
		dbg.Strategy, dbg.Cutoff, dbg.SkipSemantic, dbg.QuotedPhrase)
	for _, e := range dbg.Entries {
		fmt.Fprintf(out, "  %-10s %-12s fused=%.4f rrf=%.5f sem(#%d %.3f) kw(#%d %.2f)",
			e.Corpus, e.Key, e.FusedScore, e.RRFScore,
			e.SemanticRank, e.SemanticScore, e.KeywordRank, e.KeywordScore)
		if len(e.SourceQueries) > 0 {
			fmt.Fprintf(out, " queries=%v", e.SourceQueries)
		}
		fmt.Fprintln(out)
	}
}

// excerpt bounds one result line for terminal display.
func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= 200 {
		return s
	}
	return string(runes[:200]) + "…"
}
