// linkguard-scan resolves verdicts for URLs from the command line, for
// testing a deployment without the browser extension.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/devscan/linkguard/internal/config"
	"github.com/devscan/linkguard/internal/core"
	"github.com/devscan/linkguard/internal/di"
	"github.com/devscan/linkguard/internal/whitelist"
)

func main() {
	verbose := flag.Bool("verbose", false, "enable debug logging")
	jsonOut := flag.Bool("json", false, "print verdicts as JSON")
	endpoint := flag.String("endpoint", "", "classifier endpoint override")
	rankedPath := flag.String("whitelist", "", "ranked domain CSV override")
	flag.Parse()

	urls := flag.Args()
	if len(urls) == 0 {
		// No args: read one URL per line from stdin.
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				urls = append(urls, line)
			}
		}
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: linkguard-scan [flags] URL [URL...]")
		os.Exit(2)
	}

	overrides := map[string]interface{}{}
	if *endpoint != "" {
		overrides["classifier.endpoint"] = *endpoint
	}
	if *rankedPath != "" {
		overrides["whitelist.ranked_path"] = *rankedPath
	}

	container, err := di.BuildCLIContainer(di.CLIOptions{
		Verbose:    *verbose,
		JSONFormat: *jsonOut,
		Overrides:  overrides,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	err = container.Invoke(func(
		cfg *config.Config,
		logger *zap.Logger,
		index *whitelist.Index,
		resolver *core.Resolver,
	) error {
		defer logger.Sync()
		ctx := context.Background()

		wlCfg := cfg.GetWhitelist()
		if err := index.LoadRanked(ctx, wlCfg.RankedPath); err != nil {
			logger.Warn("Ranked whitelist unavailable, using manual list only",
				zap.Error(err))
		}

		result, err := resolver.ResolveMany(ctx, urls, 0, nil)
		if err != nil {
			return err
		}

		if *jsonOut {
			return json.NewEncoder(os.Stdout).Encode(result.Verdicts)
		}
		for _, url := range urls {
			v := result.Verdicts[url]
			if v == nil {
				continue
			}
			fmt.Printf("%s\n  verdict:    %s\n  confidence: %s\n  risk:       %s\n  reason:     %s\n",
				url, v.FinalVerdict, v.ConfidenceScore, v.AnomalyRiskLevel, v.Explanation)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(1)
	}
}
