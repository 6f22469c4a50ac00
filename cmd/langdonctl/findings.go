package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/hitushen/langdonboard/internal/adapter"
	"github.com/hitushen/langdonboard/internal/feed"
	"github.com/hitushen/langdonboard/internal/findings"
	"github.com/hitushen/langdonboard/internal/models"
	"github.com/hitushen/langdonboard/internal/notify"
	"github.com/hitushen/langdonboard/internal/visibility"
)

var flagPages int

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "page through promising findings; press Enter to load the next page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, closeFn, err := openSource()
		if err != nil {
			return err
		}
		defer closeFn()

		return browse(cmd.Context(), src, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), flagPages)
	},
}

func init() {
	findingsCmd.Flags().IntVar(&flagPages, "pages", 0, "load this many extra pages without waiting for input")
}

// browse 把终端当作滚动列表：每读到一行输入，哨兵就“完全可见”一次。
func browse(ctx context.Context, src adapter.FindingsSource, in io.Reader, out, errOut io.Writer, pages int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifier := notify.New()
	defer notifier.Close()
	tracker := visibility.NewTracker()
	ctrl := feed.New(src, notifier, tracker)

	var mu sync.Mutex
	settled := make(chan struct{}, 1)
	ready := func() {
		select {
		case settled <- struct{}{}:
		default:
		}
	}
	ctrl.OnAppend(func(items []models.Finding) {
		mu.Lock()
		for _, f := range items {
			fmt.Fprintf(out, "%-14s %-40s %s\n", f.Type, f.Label, findings.Route(f))
		}
		mu.Unlock()
		ready()
	})
	cancelNotify := notifier.Subscribe(func(msg string) {
		mu.Lock()
		fmt.Fprintf(errOut, "error: %s\n", msg)
		mu.Unlock()
		ready()
	})
	defer cancelNotify()

	ctrl.Start(ctx)
	defer ctrl.Close()

	wait := func() bool {
		select {
		case <-settled:
			return true
		case <-ctx.Done():
			return false
		}
	}
	next := func() {
		tracker.Report(ctrl.Sentinel(), visibility.FullyVisible)
		tracker.Report(ctrl.Sentinel(), 0)
	}

	if !wait() {
		return ctx.Err()
	}
	for i := 0; i < pages && !ctrl.Exhausted(); i++ {
		next()
		if !wait() {
			return ctx.Err()
		}
	}

	lines := bufio.NewScanner(in)
	for !ctrl.Exhausted() && lines.Scan() {
		if strings.EqualFold(strings.TrimSpace(lines.Text()), "q") {
			break
		}
		next()
		if !wait() {
			return ctx.Err()
		}
	}
	if ctrl.Exhausted() {
		fmt.Fprintf(out, "-- end of findings (%d loaded) --\n", len(ctrl.Items()))
	}
	return lines.Err()
}
