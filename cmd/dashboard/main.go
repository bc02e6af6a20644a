package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/sirupsen/logrus"

	"crisiswatch/internal/config"
	"crisiswatch/internal/dashboard"
	"crisiswatch/internal/domain"
)

type embeddedServer struct {
	cmd *exec.Cmd
}

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.crisiswatch/config.toml)")
	addrFlag := flag.String("addr", "", "backend base URL override")
	embedded := flag.Bool("embedded", true, "start the crisis server in the same process lifecycle")
	serverBinary := flag.String("server-bin", "", "path to server binary (optional in embedded mode)")
	dbPath := flag.String("db", "data/embedded.db", "sqlite db path for embedded server")
	dataDir := flag.String("data", "mock_data", "mock data directory for embedded server")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(logFile())
	config.LoadEnv(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	baseURL := strings.TrimRight(firstNonEmpty(*addrFlag, cfg.Dashboard.APIURL, "http://localhost:8000"), "/")

	var embeddedProc *embeddedServer
	if *embedded {
		embeddedProc, err = startEmbeddedServer(baseURL, *serverBinary, *dbPath, *dataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start embedded server: %v\n", err)
			os.Exit(1)
		}
		defer embeddedProc.Stop()
	}

	client := dashboard.NewClient(baseURL)
	if err := waitHealth(baseURL, 30*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "server health check failed: %v\n", err)
		os.Exit(1)
	}

	store := dashboard.NewStore()
	reconciler := dashboard.NewReconciler(client, store, logger, dashboard.Options{
		PollInterval:   time.Duration(cfg.Dashboard.PollIntervalMS) * time.Millisecond,
		RefetchDelay:   time.Duration(cfg.Dashboard.RefetchDelayMS) * time.Millisecond,
		FollowUpWave:   cfg.Dashboard.FollowUpWave,
		StreamDisabled: cfg.Dashboard.StreamDisabled,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer reconciler.Stop()

	app := tview.NewApplication()

	feedView := tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	feedView.SetTitle("Live Feed").SetBorder(true)

	pipelineView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	pipelineView.SetTitle("Pipeline").SetBorder(true)

	severityView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	severityView.SetTitle("Severity").SetBorder(true)

	strategyView := tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	strategyView.SetTitle("Strategy").SetBorder(true)

	timelineView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	timelineView.SetTitle("Timeline").SetBorder(true)

	responsesView := tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	responsesView.SetTitle("Drafted Replies").SetBorder(true)

	eventsView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	eventsView.SetTitle("Agent Log").SetBorder(true)

	statusView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf(
		"Connected to %s | embedded=%t | shortcuts: R run crew, I inject crisis, F10 quit",
		baseURL, *embedded,
	))

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(feedView, 0, 3, false).
		AddItem(timelineView, 0, 2, false)
	middle := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(pipelineView, 9, 0, false).
		AddItem(severityView, 6, 0, false).
		AddItem(strategyView, 8, 0, false).
		AddItem(responsesView, 0, 1, false)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(eventsView, 0, 1, false)

	mainLayout := tview.NewFlex().
		AddItem(left, 0, 2, false).
		AddItem(middle, 0, 2, false).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, false).
		AddItem(statusView, 3, 0, false)

	render := func() {
		st := store.Snapshot()
		feedView.SetText(renderFeed(st))
		pipelineView.SetText(renderPipeline(st))
		severityView.SetText(renderSeverity(st))
		strategyView.SetText(renderStrategy(st))
		timelineView.SetText(renderTimeline(st))
		responsesView.SetText(renderResponses(st))
		eventsView.SetText(renderEvents(st))
	}
	store.OnChange(func() {
		app.QueueUpdateDraw(render)
	})

	setStatusAsync := func(msg string) {
		app.QueueUpdateDraw(func() {
			statusView.SetText(msg)
		})
	}

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10, tcell.KeyEscape:
			app.Stop()
			return nil
		}
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'r', 'R':
			statusView.SetText("Run triggered, polling pipeline...")
			reconciler.StartRun(ctx)
			return nil
		case 'i', 'I':
			statusView.SetText("Crisis injected, waiting for first wave...")
			go func() {
				reconciler.Reset(ctx)
				setStatusAsync("Crisis injected | R to run the crew")
			}()
			return nil
		case 'q', 'Q':
			app.Stop()
			return nil
		}
		return event
	})

	reconciler.Subscribe(ctx)

	if err := app.SetRoot(root, true).EnableMouse(true).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard failed: %v\n", err)
		os.Exit(1)
	}
}

func renderFeed(st dashboard.State) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[::b]%d posts | reach %d[-:-:-]\n\n", st.PostCount, st.Reach))
	if len(st.Posts) == 0 {
		b.WriteString("Waiting for mentions...")
		return b.String()
	}
	for i := len(st.Posts) - 1; i >= 0; i-- {
		p := st.Posts[i]
		b.WriteString(fmt.Sprintf("[yellow]%s[-] (wave %d)\n  %s\n  +%d likes, +%d shares\n",
			p.User, p.Wave, trimLine(p.Text, 120), p.Likes, p.Retweets))
		if reply, ok := replyFor(st.Responses, p.User); ok {
			b.WriteString(fmt.Sprintf("  [green]reply:[-] %s\n", trimLine(reply.Text, 100)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func replyFor(responses []domain.Response, user string) (domain.Response, bool) {
	for _, r := range responses {
		if r.User == user {
			return r, true
		}
	}
	return domain.Response{}, false
}

func renderPipeline(st dashboard.State) string {
	var b strings.Builder
	for _, stage := range dashboard.PipelineProgress(st.Events, st.Status) {
		marker := "[gray]o[-]"
		switch stage.Status {
		case dashboard.StageDone:
			marker = "[green]x[-]"
		case dashboard.StageActive:
			marker = "[yellow]>[-]"
		}
		b.WriteString(fmt.Sprintf("%s %s (%s)\n", marker, stage.Agent, stage.Status))
	}
	return b.String()
}

func renderSeverity(st dashboard.State) string {
	gauge := dashboard.SeverityGauge(st.Decisions)
	filled := gauge.Percent / 5
	bar := strings.Repeat("#", filled) + strings.Repeat(".", 20-filled)
	out := fmt.Sprintf("[%s]%s[-]\n[%s]%s[-] %d%%\n", gauge.Color, gauge.Label, gauge.Color, bar, gauge.Percent)
	if st.Decisions.Severity != nil && st.Decisions.Severity.Reasoning != "" {
		out += trimLine(st.Decisions.Severity.Reasoning, 110)
	}
	return out
}

func renderStrategy(st dashboard.State) string {
	var b strings.Builder
	if st.Decisions.Monitor != nil {
		b.WriteString(fmt.Sprintf("flagged=%d engagement=%d\n",
			st.Decisions.Monitor.Flagged, st.Decisions.Monitor.Engagement))
	}
	if st.Decisions.Strategy == nil {
		b.WriteString("Strategy pending...")
		return b.String()
	}
	s := st.Decisions.Strategy
	b.WriteString(fmt.Sprintf("action: %s\ntone: %s\nescalate: %t\n", s.Action, s.Tone, s.Escalate))
	if banner, ok := dashboard.RecommendationBanner(st.Decisions); ok {
		b.WriteString(fmt.Sprintf("\n[%s][%s] %s: %s[-]\n", banner.Color, banner.Icon, banner.Status, banner.Text))
		if st.Decisions.Recommendation.Reason != "" {
			b.WriteString(trimLine(st.Decisions.Recommendation.Reason, 110))
		}
	}
	return b.String()
}

func renderTimeline(st dashboard.State) string {
	milestones := dashboard.Timeline(st)
	if len(milestones) == 0 {
		return "No landmarks yet"
	}
	var b strings.Builder
	for _, m := range milestones {
		at := "--:--:--"
		if !m.At.IsZero() {
			at = m.At.Local().Format("15:04:05")
		}
		b.WriteString(fmt.Sprintf("[%s] %s\n", at, m.Label))
	}
	return b.String()
}

func renderResponses(st dashboard.State) string {
	if len(st.Responses) == 0 {
		return "No replies drafted"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[::b]%d drafted[-:-:-]\n\n", len(st.Responses)))
	for _, r := range st.Responses {
		b.WriteString(fmt.Sprintf("[yellow]%s[-] (tweet %s)\n  %s\n", r.User, r.ID, trimLine(r.Text, 120)))
	}
	return b.String()
}

func renderEvents(st dashboard.State) string {
	if len(st.Events) == 0 {
		return fmt.Sprintf("status=%s\nNo pipeline events", st.Status)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("status=%s\n\n", st.Status))
	for _, ev := range st.Events {
		b.WriteString(fmt.Sprintf("[%s] [aqua]%s[-] %s\n  %s\n",
			ev.Timestamp.Local().Format("15:04:05"), ev.Agent, ev.Type, trimLine(ev.Message, 90)))
	}
	return b.String()
}

func waitHealth(baseURL string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				return nil
			}
		}
		time.Sleep(400 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for /healthz")
}

func startEmbeddedServer(baseURL, serverBinary, dbPath, dataDir string) (*embeddedServer, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	port := parsed.Port()
	if port == "" {
		return nil, fmt.Errorf("addr must include explicit port, got %q", baseURL)
	}
	addrArg := ":" + port

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	var cmd *exec.Cmd
	if strings.TrimSpace(serverBinary) != "" {
		cmd = exec.Command(serverBinary, "--addr", addrArg, "--db", dbPath, "--data", dataDir)
	} else {
		self, err := os.Executable()
		if err == nil {
			sibling := filepath.Join(filepath.Dir(self), "server")
			if fileExists(sibling) {
				cmd = exec.Command(sibling, "--addr", addrArg, "--db", dbPath, "--data", dataDir)
			}
		}
		if cmd == nil {
			cmd = exec.Command("go", "run", "./cmd/server", "--addr", addrArg, "--db", dbPath, "--data", dataDir)
			cwd, _ := os.Getwd()
			cmd.Dir = cwd
		}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server process: %w", err)
	}
	return &embeddedServer{cmd: cmd}, nil
}

func (e *embeddedServer) Stop() {
	if e == nil || e.cmd == nil || e.cmd.Process == nil {
		return
	}
	_ = e.cmd.Process.Kill()
	_, _ = e.cmd.Process.Wait()
}

// logFile redirects reconciler logging away from the terminal the UI
// owns. Failures fall back to discarding.
func logFile() io.Writer {
	if err := os.MkdirAll("data", 0o755); err != nil {
		return io.Discard
	}
	f, err := os.OpenFile(filepath.Join("data", "dashboard.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.Discard
	}
	return f
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func trimLine(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
