// Command terminaldaemon is the composition root: it wires the Session
// Derivation Core (Log Tailer -> Entry Parser -> Status Deriver ->
// Session Registry -> State Publisher) to the Terminal Multiplexer
// Bridge (Terminal Manager, WebSocket endpoint) and the thin ambient
// collaborators, then serves HTTP until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/config"
	"github.com/claude-code-ui/terminaldaemon/internal/entry"
	"github.com/claude-code-ui/terminaldaemon/internal/facade"
	"github.com/claude-code-ui/terminaldaemon/internal/gitinfo"
	"github.com/claude-code-ui/terminaldaemon/internal/hostterm"
	"github.com/claude-code-ui/terminaldaemon/internal/mount"
	"github.com/claude-code-ui/terminaldaemon/internal/notify"
	"github.com/claude-code-ui/terminaldaemon/internal/prpoll"
	"github.com/claude-code-ui/terminaldaemon/internal/publish"
	"github.com/claude-code-ui/terminaldaemon/internal/registry"
	"github.com/claude-code-ui/terminaldaemon/internal/status"
	"github.com/claude-code-ui/terminaldaemon/internal/summarize"
	"github.com/claude-code-ui/terminaldaemon/internal/tailer"
	"github.com/claude-code-ui/terminaldaemon/internal/terminal"
	"github.com/claude-code-ui/terminaldaemon/internal/wsapi"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "serve" {
		fmt.Fprintln(os.Stderr, "usage: terminaldaemon serve [--clear]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	clear := fs.Bool("clear", false, "remove the publisher's durable stream log at startup")
	_ = fs.Parse(os.Args[2:])

	if err := run(*clear); err != nil {
		log.Printf("[main] startup failed: %v", err)
		os.Exit(1)
	}
}

func run(clear bool) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	dataDir := filepath.Join(home, ".claude-code-ui")
	overlayPath := filepath.Join(dataDir, "config.yaml")

	cfg, err := config.Load(overlayPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Printf("[main] loaded config: port=%d apiPort=%d hostname=%s terminal=%s", cfg.Port, cfg.APIPort, cfg.Hostname, cfg.Terminal)

	reg := registry.New(registry.Config{
		Status: toStatusConfig(cfg),
		MaxAge: cfg.MaxAge(),
		Now:    time.Now,
		Suffix: ".jsonl",
	})

	pub, err := publish.Open(dataDir, "sessions", clear)
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}
	defer pub.Close()

	tl, err := tailer.New(tailer.Config{
		Suffix:           ".jsonl",
		SubSessionPrefix: "subagent-",
		Debounce:         cfg.Monitor.Debounce,
		MaxDepth:         2,
	})
	if err != nil {
		return fmt.Errorf("create tailer: %w", err)
	}

	logRoot := filepath.Join(home, ".claude", "projects")
	if err := os.MkdirAll(logRoot, 0o755); err != nil {
		return fmt.Errorf("create log root: %w", err)
	}
	if err := tl.Watch(logRoot); err != nil {
		return fmt.Errorf("watch log root: %w", err)
	}

	termMgr := terminal.NewManager(terminal.Config{
		IdleReclaimSweep: cfg.Monitor.IdleReclaimSweep,
		IdleReclaimAfter: cfg.Monitor.IdleReclaimAfter,
		LauncherWindow:   cfg.Monitor.LauncherWindow,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tl.Run(ctx)
	go pumpTailerToRegistry(tl, reg, cfg.Hostname)
	go runPeriodicReevaluator(ctx, reg, cfg.Monitor.ReevaluateEvery)

	sweepDone := make(chan struct{})
	go termMgr.RunIdleSweeper(sweepDone)

	summarizer := summarize.New(cfg.AnthropicAPIKey)
	notifier := notify.New(cfg.NotificationsEnabled)
	go pumpRegistryEvents(ctx, reg, pub, summarizer, notifier)

	mountMgr := mount.NewManager()
	roster, err := mount.LoadMachines()
	if err != nil {
		log.Printf("[main] load machine roster: %v", err)
	}
	for _, machine := range roster {
		go func(m mount.RosterEntry) {
			if _, err := mountMgr.Mount(m); err != nil {
				log.Printf("[main] mount %s: %v", m.Name, err)
			}
		}(machine)
	}

	term := hostterm.New(cfg.Terminal)
	f := facade.New(termMgr, term, mountMgr)

	apiMux := http.NewServeMux()
	f.Register(apiMux)
	apiMux.HandleFunc("/terminal", wsapi.Handler(termMgr))
	apiServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.APIPort), Handler: withCORS(apiMux)}

	streamMux := http.NewServeMux()
	streamMux.HandleFunc("/sessions", publish.Handler(pub))
	streamServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: withCORS(streamMux)}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("[main] api+ws listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		log.Printf("[main] stream listening on %s", streamServer.Addr)
		if err := streamServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("stream server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[main] received %s, shutting down", sig)
	case err := <-errCh:
		cancel()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = streamServer.Shutdown(shutdownCtx)
	close(sweepDone)
	cancel()
	termMgr.KillAll()
	mountMgr.UnmountAll()

	return nil
}

func toStatusConfig(cfg *config.Config) status.Config {
	return status.Config{
		PendingThreshold:  cfg.Monitor.PendingThreshold,
		FastIdleThreshold: cfg.Monitor.FastIdleThreshold,
		IdleTimeout:       cfg.Monitor.IdleTimeout,
	}
}

func pumpTailerToRegistry(tl *tailer.Tailer, reg *registry.Registry, hostname string) {
	for batch := range tl.Out() {
		reg.HandleBatch(hostname, batch)
	}
}

// pumpRegistryEvents drains the Registry's single event stream, forwarding
// every event to the State Publisher and, on the side, triggering the
// ambient collaborators: git/PR lookups and summarization for newly
// created sessions, and a desktop notification whenever an event carries
// a fresh working->waiting Notification.
func pumpRegistryEvents(ctx context.Context, reg *registry.Registry, pub *publish.Publisher, summarizer *summarize.Client, notifier notify.Notifier) {
	for ev := range reg.Events() {
		pub.PublishFromEvent(ev)

		if ev.Type == registry.EventCreated && ev.Session != nil {
			go enrichSession(ctx, reg, summarizer, ev.Session.Clone())
		}
		if ev.Session != nil && ev.Session.Notification != nil {
			notifier.Notify(notificationTitle(ev.Session.Notification.Type), ev.Session.Goal)
		}
	}
}

// enrichSession populates a newly created session's git branch, PR, and
// one-line summary from the thin external-CLI/HTTP collaborators. All
// three degrade silently to "unavailable" per their own package
// contracts; nothing here is fatal to session derivation.
func enrichSession(ctx context.Context, reg *registry.Registry, summarizer *summarize.Client, sess *registry.Session) {
	info := gitinfo.Lookup(sess.CWD)
	reg.UpdateGitInfo(sess.ID, info.Branch, info.RepoID)

	if pr := prpoll.Lookup(sess.CWD); pr != nil {
		reg.UpdatePR(sess.ID, &registry.PRInfo{Number: pr.Number, URL: pr.URL, State: pr.State})
	}

	if summarizer.Enabled() {
		summary, err := summarizer.Summarize(ctx, sess.OriginalPrompt, lastAssistantText(sess))
		if err != nil {
			log.Printf("[main] summarize session %s: %v", sess.ID, err)
		} else if summary != "" {
			reg.UpdateSummary(sess.ID, summary)
		}
	}
}

// lastAssistantText returns the most recent assistant text entry's body,
// the "recent activity" half of the summarizer's prompt.
func lastAssistantText(sess *registry.Session) string {
	for i := len(sess.Entries) - 1; i >= 0; i-- {
		e := sess.Entries[i]
		if e.Role == entry.RoleAssistant && e.Text != "" {
			return e.Text
		}
	}
	return ""
}

func notificationTitle(notificationType string) string {
	if notificationType == "needs_approval" {
		return "Claude needs approval"
	}
	return "Claude is waiting for input"
}

func runPeriodicReevaluator(ctx context.Context, reg *registry.Registry, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range reg.WorkingSessionIDs() {
				reg.Reevaluate(id)
			}
		}
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
