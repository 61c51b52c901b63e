package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/pverill/agentfeed/internal/config"
	"github.com/pverill/agentfeed/internal/monitor"
	"github.com/pverill/agentfeed/internal/state"
	"github.com/pverill/agentfeed/internal/stream"
	"github.com/pverill/agentfeed/internal/streamtest"
)

var (
	tailBaseURL string
	tailSession string
	tailToken   string
	tailConfig  string
	tailDemo    bool
)

var tailCmd = &cobra.Command{
	Use:   "tail <job-id>",
	Short: "Follow a job's action log live",
	Long: `Connect to the agent-actions feed for a job and print its action log
as it evolves: tool calls, streamed text, created files, step progress.
The connection is kept alive across interruptions with capped backoff.

Example:
  agentfeed tail job-7f3a --base-url https://agent.example.com --session sess-1
  agentfeed tail demo --demo`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVar(&tailBaseURL, "base-url", "", "Feed base URL")
	tailCmd.Flags().StringVar(&tailSession, "session", "", "Session id")
	tailCmd.Flags().StringVar(&tailToken, "token", "", "Bearer token for the feed")
	tailCmd.Flags().StringVar(&tailConfig, "config", "agentfeed.yaml", "Config file path")
	tailCmd.Flags().BoolVar(&tailDemo, "demo", false, "Run against a built-in scripted feed")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	cfg, err := config.Load(tailConfig)
	if err != nil {
		return err
	}

	baseURL := tailBaseURL
	if tailDemo {
		server := streamtest.NewServer(streamtest.DemoSegments()...)
		defer server.Close()
		baseURL = server.URL
		// The demo drops the connection between segments; keep the
		// reconnect gap short so the playback reads continuously.
		cfg.Stream.BaseDelay = 200 * time.Millisecond
		cfg.Stream.CapDelay = time.Second
	}
	if baseURL == "" {
		return fmt.Errorf("--base-url is required (or use --demo)")
	}

	var opts []stream.Option
	if tailToken != "" {
		opts = append(opts, stream.WithAuthToken(tailToken))
	}

	m := monitor.New(baseURL, tailSession, cfg, opts...)
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots := make(chan monitor.Snapshot, 64)
	m.Subscribe(ctx, jobID, func(snap monitor.Snapshot) {
		select {
		case snapshots <- snap:
		default:
			// Printing is best-effort; a dropped intermediate snapshot
			// is superseded by the next one.
		}
	})

	printer := newTailPrinter(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-snapshots:
			printer.print(snap)
			if snap.Connection.Unavailable {
				return stream.ErrStreamUnavailable
			}
			if tailDemo && snap.Completed {
				return nil
			}
		}
	}
}

// tailPrinter writes incremental action-log updates: each action is
// printed once when it first closes (or immediately for non-streaming
// actions), plus a progress line when the percentage moves.
type tailPrinter struct {
	out      io.Writer
	profile  termenv.Profile
	printed  map[string]state.Status
	progress int
}

func newTailPrinter(out io.Writer) *tailPrinter {
	return &tailPrinter{
		out:      out,
		profile:  termenv.ColorProfile(),
		printed:  map[string]state.Status{},
		progress: -1,
	}
}

func (p *tailPrinter) print(snap monitor.Snapshot) {
	for _, a := range snap.Actions {
		if a.IsStreaming {
			continue
		}
		if last, ok := p.printed[a.ID]; ok && last == a.Status {
			continue
		}
		p.printed[a.ID] = a.Status
		fmt.Fprintf(p.out, "%s %-12s %s\n", p.statusMark(a.Status), a.Kind, p.actionLine(a))
	}

	if snap.Progress != p.progress {
		p.progress = snap.Progress
		fmt.Fprintf(p.out, "  progress: %d%%\n", snap.Progress)
	}

	if snap.JobError != "" {
		if _, ok := p.printed["job-error"]; !ok {
			p.printed["job-error"] = state.StatusError
			fmt.Fprintf(p.out, "%s job error: %s\n", p.statusMark(state.StatusError), snap.JobError)
		}
	}
}

func (p *tailPrinter) actionLine(a state.Action) string {
	if a.Content != "" && len(a.Content) <= 120 {
		return fmt.Sprintf("%s: %s", a.Title, a.Content)
	}
	return a.Title
}

func (p *tailPrinter) statusMark(s state.Status) string {
	var mark termenv.Style
	switch s {
	case state.StatusCompleted:
		mark = termenv.String("✓").Foreground(p.profile.Color("2"))
	case state.StatusError:
		mark = termenv.String("✗").Foreground(p.profile.Color("1"))
	case state.StatusRunning:
		mark = termenv.String("…").Foreground(p.profile.Color("3"))
	default:
		mark = termenv.String("·")
	}
	return mark.String()
}
