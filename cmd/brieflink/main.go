// Package main provides brieflink - client onboarding, briefs and project phase tracking for designers.
package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/brieflink/pkg/brief"
	"github.com/umputun/brieflink/pkg/config"
	"github.com/umputun/brieflink/pkg/input"
	"github.com/umputun/brieflink/pkg/magiclink"
	"github.com/umputun/brieflink/pkg/notify"
	"github.com/umputun/brieflink/pkg/progress"
	"github.com/umputun/brieflink/pkg/render"
	"github.com/umputun/brieflink/pkg/status"
	"github.com/umputun/brieflink/pkg/store"
	"github.com/umputun/brieflink/pkg/web"
)

// projectArgs holds the positional project id of per-project commands.
type projectArgs struct {
	ID string `positional-arg-name:"project-id" required:"yes" description:"project id"`
}

// opts holds all command-line options.
type opts struct {
	Config  string `long:"config" env:"BRIEFLINK_CONFIG" description:"config directory (default ~/.config/brieflink)"`
	DB      string `long:"db" env:"BRIEFLINK_DB" description:"sqlite database path, overrides db_path"`
	Debug   bool   `short:"d" long:"debug" description:"enable debug logging"`
	NoColor bool   `long:"no-color" description:"disable color output"`
	Version bool   `short:"v" long:"version" description:"print version and exit"`

	Serve struct {
		Listen string `short:"l" long:"listen" description:"listen address, overrides listen from config"`
	} `command:"serve" description:"run the designer api and the client portal"`

	Status struct {
		Args projectArgs `positional-args:"yes"`
	} `command:"status" description:"print the phase stepper of a project"`

	Phases struct{} `command:"phases" description:"list project phases in order"`

	Summary struct {
		Args projectArgs `positional-args:"yes"`
	} `command:"summary" description:"render the brief summary of a project"`

	Fill struct {
		Args projectArgs `positional-args:"yes"`
	} `command:"fill" description:"answer the brief in the terminal on behalf of the client"`
}

var revision = "unknown"

func main() {
	var o opts
	parser := flags.NewParser(&o, flags.Default)
	parser.SubcommandsOptional = true

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if o.Version {
		fmt.Printf("brieflink %s\n", revision)
		os.Exit(0)
	}
	if parser.Active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	// setup context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o, parser.Active.Name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts, command string) error {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLog(o.Debug, cfg.APIToken, cfg.SMTPPassword, cfg.SlackToken, cfg.TelegramToken)
	lgr.Printf("[DEBUG] config loaded from %s", cfg.Dir())

	pr := progress.New(progress.Config{NoColor: o.NoColor})
	if command == "phases" {
		pr.Phases()
		return nil
	}

	dbPath := cfg.DBFile()
	if o.DB != "" {
		dbPath = o.DB
	}
	st, err := store.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	switch command {
	case "serve":
		listen := cfg.Listen
		if o.Serve.Listen != "" {
			listen = o.Serve.Listen
		}
		return serve(ctx, cfg, st, listen)
	case "status":
		return printStatus(ctx, st, o.Status.Args.ID, pr)
	case "summary":
		return printSummary(ctx, cfg, st, o.Summary.Args.ID, o.NoColor)
	case "fill":
		return fillBrief(ctx, cfg, st, input.NewTerminalCollector(), o.Fill.Args.ID, pr)
	}
	return fmt.Errorf("unknown command %q", command)
}

// serve runs the http server and the questionnaire watcher until ctx is canceled.
func serve(ctx context.Context, cfg *config.Config, st store.Store, listen string) error {
	watcher, err := brief.NewWatcher(cfg.QuestionnaireFile(), lgr.Default())
	if err != nil {
		return fmt.Errorf("load questionnaire: %w", err)
	}

	notifier, err := notify.New(cfg.NotifyParams(), lgr.Default())
	if err != nil {
		return fmt.Errorf("init notifications: %w", err)
	}
	if notifier == nil {
		lgr.Printf("[INFO] no notification channels configured")
	}

	srv, err := web.NewServer(web.ServerConfig{
		Listen:       listen,
		BaseURL:      cfg.BaseURL,
		APIToken:     cfg.APIToken,
		MagicLinkTTL: cfg.MagicLinkTTL(),
	}, web.Deps{Store: st, Questionnaires: watcher, Notifier: notifier})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	go func() {
		if werr := watcher.Run(ctx); werr != nil {
			lgr.Printf("[WARN] questionnaire watcher stopped: %v", werr)
		}
	}()

	lgr.Printf("[INFO] brieflink %s, portal at %s", revision, cfg.BaseURL)
	return srv.Start(ctx)
}

// printStatus prints the project header, stepper and pending revisions.
// warns when the client's newest magic link has expired.
func printStatus(ctx context.Context, st store.Store, id string, pr *progress.Printer) error {
	p, err := st.GetProject(ctx, id)
	if err != nil {
		return err
	}
	f, err := st.Flags(ctx, id)
	if err != nil {
		return err
	}
	revisions, err := st.ListRevisions(ctx, id)
	if err != nil {
		return err
	}
	shared, err := st.ListDeliverables(ctx, id, true)
	if err != nil {
		return err
	}

	r := progress.Report{
		ID:           p.ID,
		Title:        p.Title,
		ClientName:   p.ClientName,
		Status:       p.Status,
		Phase:        status.ResolveFlags(p.Status, f),
		UpdatedAt:    p.UpdatedAt,
		Deliverables: len(shared),
	}
	for _, rev := range revisions {
		switch {
		case !rev.Pending():
		case rev.Author == store.AuthorClient:
			r.Revisions = append(r.Revisions, rev.Note)
		default:
			r.Revisions = append(r.Revisions, "("+rev.Author+" note) "+rev.Note)
		}
	}
	pr.Project(r)

	l, err := st.LatestMagicLink(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	if magiclink.Expired(l.ExpiresAt, time.Now()) {
		pr.Warn("client link expired %s, send the project again to issue a new one", humanize.Time(l.ExpiresAt))
	}
	return nil
}

// printSummary renders the markdown brief summary for the terminal.
func printSummary(ctx context.Context, cfg *config.Config, st store.Store, id string, noColor bool) error {
	p, err := st.GetProject(ctx, id)
	if err != nil {
		return err
	}
	b, err := st.GetBrief(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("project %s has no submitted brief", id)
	}
	if err != nil {
		return err
	}
	q, err := brief.Load(cfg.QuestionnaireFile())
	if err != nil {
		return fmt.Errorf("load questionnaire: %w", err)
	}

	md := brief.Summary(q, brief.SummaryInput{ProjectTitle: p.Title, ClientName: p.ClientName, SubmittedAt: b.SubmittedAt},
		b.Answers, brief.Score(q, b.Answers))
	out, err := render.Markdown(md, noColor, 0)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// fillBrief collects answers in the terminal and stores them as the submitted brief.
// only possible while the brief is still open for the client.
func fillBrief(ctx context.Context, cfg *config.Config, st store.Store, c input.Collector, id string, pr *progress.Printer) error {
	p, err := st.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != status.StatusSent {
		return fmt.Errorf("project %s is %s, brief can be filled only after it was sent", id, p.Status)
	}
	q, err := brief.Load(cfg.QuestionnaireFile())
	if err != nil {
		return fmt.Errorf("load questionnaire: %w", err)
	}

	answers, err := input.Fill(ctx, c, q)
	var verr *brief.ValidationError
	if errors.As(err, &verr) {
		ids := slices.Sorted(maps.Keys(verr.Fields))
		for _, qid := range ids {
			pr.Error("%s: %s", qid, verr.Fields[qid])
		}
		return err
	}
	if err != nil {
		return err
	}
	// the store re-checks the status, the server may have started work meanwhile
	err = st.SaveBrief(ctx, store.Brief{ProjectID: id, Answers: answers, SubmittedAt: time.Now()})
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("project %s moved on while answering, brief not saved: %w", id, err)
	}
	if err != nil {
		return fmt.Errorf("save brief: %w", err)
	}
	lgr.Printf("[INFO] brief saved for project %s", id)

	f, err := st.Flags(ctx, id)
	if err != nil {
		return err
	}
	pr.Steps(status.ResolveFlags(p.Status, f))
	return nil
}

// setupLog configures lgr; secrets are masked in every log line.
func setupLog(debug bool, secrets ...string) {
	var masked []string
	for _, s := range secrets {
		if s != "" {
			masked = append(masked, s)
		}
	}
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.Secret(masked...)}
	if debug {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.Secret(masked...)}
	}
	lgr.Setup(logOpts...)
}
