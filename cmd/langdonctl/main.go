package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hitushen/langdonboard/internal/adapter"
	"github.com/hitushen/langdonboard/internal/config"
	"github.com/hitushen/langdonboard/internal/findings"
	"github.com/hitushen/langdonboard/internal/log"
	"github.com/hitushen/langdonboard/internal/store"
)

var (
	flagDBPath   string  // value of --db
	flagBaseURL  string  // value of --base
	flagCookie   string  // value of --cookie
	flagRate     float64 // value of --rate
	flagPageSize int     // value of --page-size
	flagVerbose  bool    // value of --verbose
)

var rootCmd = &cobra.Command{
	Use:   "langdonctl",
	Short: "inspect and feed a langdon recon database",
	Long: `langdonctl reads overview statistics and promising findings either from a local
langdon database or from a running dashboard, imports scope files and runs port scans.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", config.DefaultDBPath(), "path to the langdon sqlite database")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base", "", "dashboard base URL; when set, data is read over HTTP instead of from --db")
	rootCmd.PersistentFlags().StringVar(&flagCookie, "cookie", "", "session cookie sent to the dashboard (name=value)")
	rootCmd.PersistentFlags().Float64Var(&flagRate, "rate", 2, "requests per second against the dashboard")
	rootCmd.PersistentFlags().IntVar(&flagPageSize, "page-size", config.DefaultPageSize, "findings per page for local reads")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		slog.SetDefault(log.New(flagVerbose))
	}

	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(findingsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(scanCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		slog.Error("langdonctl failed", "err", err)
		os.Exit(1)
	}
}

// openSource 按参数选择远程或本地数据源，返回的关闭函数总是非 nil。
func openSource() (adapter.Source, func(), error) {
	if flagBaseURL != "" {
		h, err := adapter.NewHTTP(flagBaseURL, flagRate)
		if err != nil {
			return nil, nil, err
		}
		if flagCookie != "" {
			h.SetHeader("Cookie", flagCookie)
		}
		return h, func() {}, nil
	}
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	src := adapter.NewLocal(st, findings.NewPaginator(st, flagPageSize))
	return src, func() { _ = st.Close() }, nil
}

func openStore() (*store.Store, error) {
	st, err := store.New(flagDBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", flagDBPath, err)
	}
	return st, nil
}
