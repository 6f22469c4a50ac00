package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitushen/langdonboard/internal/realtime"
	"github.com/hitushen/langdonboard/internal/scanner"
)

var flagScanTimeout time.Duration

// eventChan 把扫描完成事件转给命令。
type eventChan chan realtime.Event

func (c eventChan) Publish(evt realtime.Event) {
	select {
	case c <- evt:
	default:
	}
}

var scanCmd = &cobra.Command{
	Use:   "scan ADDRESS",
	Short: "scan the top ports of a host and record open ports into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		done := make(eventChan, 1)
		m := scanner.NewManager(st, done, flagScanTimeout, 1, slog.Default())
		defer m.Close()

		if !m.Schedule(args[0]) {
			return fmt.Errorf("could not schedule %q", args[0])
		}
		select {
		case evt := <-done:
			fmt.Fprintf(cmd.OutOrStdout(), "%v\n", evt.Payload)
			return nil
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	},
}

func init() {
	scanCmd.Flags().DurationVar(&flagScanTimeout, "timeout", 2*time.Second, "per-port probe timeout")
}
