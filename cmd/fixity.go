package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jdillenkofer/fixity/internal/auditlog"
	"github.com/jdillenkofer/fixity/internal/catalog"
	"github.com/jdillenkofer/fixity/internal/checker"
	"github.com/jdillenkofer/fixity/internal/database"
	"github.com/jdillenkofer/fixity/internal/dispatcher"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/jdillenkofer/fixity/internal/http/server"
	"github.com/jdillenkofer/fixity/internal/http/server/authorization/lua"
	"github.com/jdillenkofer/fixity/internal/ledger"
	"github.com/jdillenkofer/fixity/internal/settings"
	"github.com/jdillenkofer/fixity/internal/task"
	"github.com/jdillenkofer/fixity/internal/telemetry"
	"github.com/jdillenkofer/fixity/internal/verifier"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultAuthorizationCode = `
function authorizeRequest(request)
  return true
end
`

const (
	subcommandCheck       = "check"
	subcommandDaemon      = "daemon"
	subcommandReconcile   = "reconcile"
	subcommandReport      = "report"
	subcommandRegister    = "register"
	subcommandContainer   = "container"
	subcommandDelete      = "delete"
	subcommandPurge       = "purge"
	subcommandSchedule    = "schedule"
	subcommandAuditVerify = "audit-verify"
	subcommandAuditKeygen = "audit-keygen"
)

var subcommands = []string{
	subcommandCheck,
	subcommandDaemon,
	subcommandReconcile,
	subcommandReport,
	subcommandRegister,
	subcommandContainer,
	subcommandDelete,
	subcommandPurge,
	subcommandSchedule,
	subcommandAuditVerify,
	subcommandAuditKeygen,
}

var ErrUsage = errors.New("usage error")

type cli struct {
	stdout io.Writer
	level  *slog.LevelVar
}

func main() {
	var programLevel = new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     programLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{stdout: os.Stdout, level: programLevel}
	err := c.run(ctx, os.Args[1:])
	if err != nil {
		slog.Error(err.Error())
		stop()
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: fixity %s [options]", ErrUsage, strings.Join(subcommands, "|"))
	}
	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case subcommandCheck:
		return c.check(ctx, rest)
	case subcommandDaemon:
		return c.daemon(ctx, rest)
	case subcommandReconcile:
		return c.reconcile(ctx, rest)
	case subcommandReport:
		return c.report(ctx, rest)
	case subcommandRegister:
		return c.register(ctx, rest)
	case subcommandContainer:
		return c.container(ctx, rest)
	case subcommandDelete:
		return c.delete(ctx, rest)
	case subcommandPurge:
		return c.purge(ctx, rest)
	case subcommandSchedule:
		return c.schedule(ctx, rest)
	case subcommandAuditVerify:
		return c.auditVerify(ctx, rest)
	case subcommandAuditKeygen:
		return c.auditKeygen(ctx, rest)
	}
	return fmt.Errorf("%w: invalid subcommand %s, expected one of %s", ErrUsage, subcommand, strings.Join(subcommands, ", "))
}

func (c *cli) loadSettings(fs *flag.FlagSet, args []string) (*settings.Settings, error) {
	fs.SetOutput(c.stdout)
	s, err := settings.LoadSettings(fs, args)
	if err != nil {
		return nil, err
	}
	level, err := s.SlogLevel()
	if err != nil {
		return nil, err
	}
	c.level.Set(level)
	return s, nil
}

func (c *cli) withApp(ctx context.Context, s *settings.Settings, fn func(a *app) error) error {
	a, err := openApp(ctx, s)
	if err != nil {
		return err
	}
	err = fn(a)
	return errors.Join(err, a.Close(ctx))
}

func setupTracing(ctx context.Context, s *settings.Settings) (func(context.Context) error, error) {
	if !s.OtelEnabled() {
		return func(context.Context) error { return nil }, nil
	}
	return telemetry.SetupOTelSDK(ctx, telemetry.Options{
		ServiceName: "fixity",
		Exporter:    s.OtelExporter(),
		Endpoint:    s.OtelEndpoint(),
	})
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func parseBitstreamIds(args []string) ([]fixity.BitstreamId, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: at least one bitstream id is required", ErrUsage)
	}
	ids := make([]fixity.BitstreamId, 0, len(args))
	for _, arg := range args {
		id, err := fixity.NewBitstreamIdFromString(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, *id)
	}
	return ids, nil
}

type checkOptions struct {
	count    *int
	duration time.Duration
	root     string
	id       string
	loop     bool
}

// buildSource stacks the bounds over the base source: scope or single id or
// ledger order, then count, then deadline.
func buildSource(ctx context.Context, a *app, options checkOptions, runStart time.Time) (dispatcher.CandidateSource, error) {
	if options.loop && (options.root != "" || options.id != "") {
		return nil, fmt.Errorf("%w: -loop cannot be combined with -root or -id", ErrUsage)
	}
	if options.root != "" && options.id != "" {
		return nil, fmt.Errorf("%w: -root and -id are mutually exclusive", ErrUsage)
	}

	var source dispatcher.CandidateSource
	var err error
	switch {
	case options.id != "":
		id, err := fixity.NewBitstreamIdFromString(options.id)
		if err != nil {
			return nil, err
		}
		source = dispatcher.NewList([]fixity.BitstreamId{*id})
	case options.root != "":
		source, err = dispatcher.NewScopeFiltered(ctx, a.catalog, options.root)
		if err != nil {
			return nil, err
		}
	case options.loop:
		source = dispatcher.NewLooping(a.ledger)
	default:
		source = dispatcher.NewOldestFirst(a.ledger, runStart)
	}

	if options.count != nil {
		source, err = dispatcher.NewCountBounded(source, *options.count)
		if err != nil {
			return nil, err
		}
	}
	if options.duration > 0 {
		source = dispatcher.NewDeadlineBounded(source, runStart.Add(options.duration))
	}
	return source, nil
}

func (c *cli) writeReport(report *checker.Report, jsonOutput bool) error {
	if jsonOutput {
		return report.WriteJSON(c.stdout)
	}
	return report.WriteText(c.stdout)
}

func (c *cli) check(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandCheck, flag.ContinueOnError)
	count := fs.Int("count", 0, "stop after this many bitstreams")
	duration := fs.Duration("duration", 0, "stop dispatching new bitstreams after this long")
	root := fs.String("root", "", "only check below this handle, container id or bitstream id")
	id := fs.String("id", "", "check a single bitstream")
	loop := fs.Bool("loop", false, "cycle through the ledger instead of stopping after one sweep")
	reconcile := fs.Bool("reconcile", true, "add missing checksum records before checking")
	jsonOutput := fs.Bool("json", false, "print the report as JSON")
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	shutdownTracing, err := setupTracing(ctx, s)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	options := checkOptions{duration: *duration, root: *root, id: *id, loop: *loop}
	if isFlagSet(fs, "count") {
		options.count = count
	}

	return c.withApp(ctx, s, func(a *app) error {
		if *reconcile {
			if err := c.reconcileBeforeCheck(ctx, a, options); err != nil {
				return err
			}
		}
		runStart := time.Now()
		source, err := buildSource(ctx, a, options, runStart)
		if err != nil {
			return err
		}
		report, runErr := checker.New(source, a.verifier, a.ledger).Run(ctx)
		return errors.Join(runErr, c.writeReport(report, *jsonOutput))
	})
}

func (c *cli) reconcileBeforeCheck(ctx context.Context, a *app, options checkOptions) error {
	if options.id == "" {
		inserted, err := a.ledger.ReconcileMissing(ctx)
		if err != nil {
			return err
		}
		if inserted > 0 {
			slog.Info(fmt.Sprintf("Added %d checksum records", inserted))
		}
		return nil
	}
	id, err := fixity.NewBitstreamIdFromString(options.id)
	if err != nil {
		return err
	}
	_, err = a.ledger.ReconcileOne(ctx, *id)
	if errors.Is(err, ledger.ErrBitstreamUnknown) {
		slog.Warn(err.Error())
		return nil
	}
	return err
}

func loadRequestAuthorizer(authorizationScript string) (*lua.LuaAuthorizer, error) {
	authorizerCode := []byte(defaultAuthorizationCode)
	if authorizationScript != "" {
		code, err := os.ReadFile(authorizationScript)
		if err != nil {
			return nil, fmt.Errorf("could not load authorization script: %w", err)
		}
		authorizerCode = code
	} else {
		slog.Warn("No authorizationScript configured, the reporting api allows every request")
	}
	return lua.NewLuaAuthorizer(string(authorizerCode))
}

func listen(ctx context.Context, name string, addr string, handler http.Handler) *http.Server {
	httpServer := &http.Server{
		BaseContext: func(net.Listener) context.Context { return ctx },
		Addr:        addr,
		Handler:     handler,
	}
	go func() {
		slog.Info(fmt.Sprintf("Listening with %s api on http://%v", name, addr))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("Error while serving %s api: %s", name, err))
		}
	}()
	return httpServer
}

func (c *cli) daemon(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandDaemon, flag.ContinueOnError)
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	shutdownTracing, err := setupTracing(ctx, s)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	return c.withApp(ctx, s, func(a *app) error {
		requestAuthorizer, err := loadRequestAuthorizer(s.AuthorizationScript())
		if err != nil {
			return err
		}
		monitor, err := checker.NewMonitor(a.ledger, prometheus.DefaultRegisterer, 30*time.Second)
		if err != nil {
			return err
		}
		if err := monitor.Start(ctx); err != nil {
			return err
		}
		defer monitor.Stop(context.Background())
		v := monitor.WrapVerifier(a.verifier)

		servers := []*http.Server{
			listen(ctx, "reporting", fmt.Sprintf("%v:%v", s.BindAddress(), s.ApiPort()), server.SetupServer(requestAuthorizer, a.ledger)),
		}
		if s.MonitoringEnabled() {
			monitoringHandler := server.SetupMonitoringServer([]database.Database{a.db}, prometheus.DefaultGatherer)
			servers = append(servers, listen(ctx, "monitoring", fmt.Sprintf("%v:%v", s.BindAddress(), s.MonitoringPort()), monitoringHandler))
		}

		totals := &cycleTotals{}
		cycles := task.Every(s.CheckInterval(), func() {
			runCheckCycle(ctx, a, v, monitor, totals)
		})

		<-ctx.Done()
		slog.Info("Shutting down")
		cycles.Cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var shutdownErr error
		for _, httpServer := range servers {
			shutdownErr = errors.Join(shutdownErr, httpServer.Shutdown(shutdownCtx))
		}
		if cycles.JoinWithTimeout(30 * time.Second) {
			slog.Warn("Check cycle did not stop within 30s")
		}
		total := totals.Report()
		slog.Info(fmt.Sprintf("Checked %d bitstreams in %d cycles: %d mismatches, %d not found", total.Processed, totals.Cycles(), len(total.Mismatches), len(total.NotFound)))
		return shutdownErr
	})
}

// cycleTotals accumulates the reports of every daemon cycle.
type cycleTotals struct {
	mu     sync.Mutex
	total  checker.Report
	cycles int
}

func (t *cycleTotals) Add(report *checker.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.Merge(report)
	t.cycles++
}

func (t *cycleTotals) Report() checker.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.total
	total.Outcomes = maps.Clone(t.total.Outcomes)
	total.Mismatches = slices.Clone(t.total.Mismatches)
	total.NotFound = slices.Clone(t.total.NotFound)
	return total
}

func (t *cycleTotals) Cycles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycles
}

func runCheckCycle(ctx context.Context, a *app, v verifier.Verifier, monitor *checker.Monitor, totals *cycleTotals) {
	if ctx.Err() != nil {
		return
	}
	inserted, err := a.ledger.ReconcileMissing(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("Could not reconcile checksum records: %s", err))
		return
	}
	if inserted > 0 {
		slog.Info(fmt.Sprintf("Added %d checksum records", inserted))
	}
	report, err := checker.New(dispatcher.NewOldestFirst(a.ledger, time.Now()), v, a.ledger).Run(ctx)
	monitor.ObserveRun(report)
	totals.Add(report)
	if err != nil {
		return
	}
	slog.Info(fmt.Sprintf("Check cycle finished: %d processed, %d mismatches, %d not found", report.Processed, len(report.Mismatches), len(report.NotFound)))
}

func (c *cli) reconcile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandReconcile, flag.ContinueOnError)
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	return c.withApp(ctx, s, func(a *app) error {
		inserted, err := a.ledger.ReconcileMissing(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "Added %d checksum records\n", inserted)
		return nil
	})
}

func parseTimeFlag(name string, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid -%s: %s", ErrUsage, name, err)
	}
	return &t, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func (c *cli) report(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandReport, flag.ContinueOnError)
	id := fs.String("id", "", "show the checksum record of this bitstream")
	summary := fs.Bool("summary", false, "count history entries and ledger records by outcome")
	from := fs.String("from", "", "only history whose window ended at or after this RFC3339 time")
	to := fs.String("to", "", "only history whose window ended before this RFC3339 time")
	outcome := fs.String("outcome", "", "only history with this outcome")
	bitstream := fs.String("bitstream", "", "only history of this bitstream")
	limit := fs.Int("limit", 100, "maximum number of history entries")
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	fromTime, err := parseTimeFlag("from", *from)
	if err != nil {
		return err
	}
	toTime, err := parseTimeFlag("to", *to)
	if err != nil {
		return err
	}

	return c.withApp(ctx, s, func(a *app) error {
		switch {
		case *id != "":
			return c.printRecord(ctx, a, *id)
		case *summary:
			return c.printSummary(ctx, a, fromTime, toTime)
		}
		query := ledger.HistoryQuery{From: fromTime, To: toTime, Limit: *limit}
		if *outcome != "" {
			o, err := fixity.ParseOutcome(*outcome)
			if err != nil {
				return fmt.Errorf("%w: %s", err, *outcome)
			}
			query.Outcome = &o
		}
		if *bitstream != "" {
			query.BitstreamId, err = fixity.NewBitstreamIdFromString(*bitstream)
			if err != nil {
				return err
			}
		}
		return c.printHistory(ctx, a, query)
	})
}

func (c *cli) printRecord(ctx context.Context, a *app, rawId string) error {
	id, err := fixity.NewBitstreamIdFromString(rawId)
	if err != nil {
		return err
	}
	record, err := a.ledger.FindByBitstreamId(ctx, *id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, rawId)
	}
	w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "bitstream\t%s\n", record.BitstreamId.String())
	fmt.Fprintf(w, "outcome\t%s (%s)\n", record.Outcome, record.Outcome.Description())
	fmt.Fprintf(w, "algorithm\t%s\n", record.Algorithm)
	fmt.Fprintf(w, "expected\t%s\n", record.ExpectedDigest)
	fmt.Fprintf(w, "observed\t%s\n", record.ObservedDigest)
	fmt.Fprintf(w, "matched previous\t%t\n", record.MatchedPrevious)
	fmt.Fprintf(w, "deleted\t%t\n", record.Deleted)
	fmt.Fprintf(w, "scheduled\t%t\n", record.Scheduled)
	fmt.Fprintf(w, "last checked\t%s\n", formatOptionalTime(record.WindowEnd))
	return w.Flush()
}

func (c *cli) printSummary(ctx context.Context, a *app, from *time.Time, to *time.Time) error {
	if from == nil {
		epoch := time.Unix(0, 0)
		from = &epoch
	}
	if to == nil {
		now := time.Now()
		to = &now
	}
	history, err := a.ledger.CountHistoryByOutcome(ctx, *from, *to)
	if err != nil {
		return err
	}
	records, err := a.ledger.CountByOutcome(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "OUTCOME\tCHECKS\tRECORDS\n")
	for _, outcome := range fixity.Outcomes {
		fmt.Fprintf(w, "%s\t%d\t%d\n", outcome, history[outcome], records[outcome])
	}
	return w.Flush()
}

func (c *cli) printHistory(ctx context.Context, a *app, query ledger.HistoryQuery) error {
	entries, err := a.ledger.FindHistory(ctx, query)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "CHECKED\tBITSTREAM\tOUTCOME\tEXPECTED\tOBSERVED\n")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", entry.WindowEnd.UTC().Format(time.RFC3339), entry.BitstreamId.String(), entry.Outcome, entry.ExpectedDigest, entry.ObservedDigest)
	}
	return w.Flush()
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandRegister, flag.ContinueOnError)
	item := fs.String("item", "", "id of the item the files belong to")
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: fixity register -item <id> <file>...", ErrUsage)
	}
	itemId, err := ulid.Parse(*item)
	if err != nil {
		return fmt.Errorf("%w: invalid -item: %s", ErrUsage, err)
	}
	return c.withApp(ctx, s, func(a *app) error {
		for _, path := range fs.Args() {
			b, err := registerFile(ctx, a, itemId, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "%s\t%s\t%s:%s\n", b.Id.String(), b.Name, b.ChecksumAlgorithm, b.Checksum)
		}
		return nil
	})
}

func registerFile(ctx context.Context, a *app, itemId ulid.ULID, path string) (*catalog.Bitstream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := a.catalog.RegisterBitstream(ctx, itemId, filepath.Base(path), f)
	if err != nil {
		return nil, fmt.Errorf("could not register %s: %w", path, err)
	}
	_, err = a.ledger.ReconcileOne(ctx, b.Id)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *cli) container(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandContainer, flag.ContinueOnError)
	containerType := fs.String("type", "", "community, collection or item")
	handle := fs.String("handle", "", "optional unique handle")
	name := fs.String("name", "", "display name")
	parent := fs.String("parent", "", "id of the parent container")
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	t, err := catalog.ParseContainerType(*containerType)
	if err != nil {
		return err
	}
	var parentId *ulid.ULID
	if *parent != "" {
		id, err := ulid.Parse(*parent)
		if err != nil {
			return fmt.Errorf("%w: invalid -parent: %s", ErrUsage, err)
		}
		parentId = &id
	}
	return c.withApp(ctx, s, func(a *app) error {
		created, err := a.catalog.CreateContainer(ctx, t, *handle, *name, parentId)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, created.Id.String())
		return nil
	})
}

func (c *cli) delete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandDelete, flag.ContinueOnError)
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	ids, err := parseBitstreamIds(fs.Args())
	if err != nil {
		return err
	}
	return c.withApp(ctx, s, func(a *app) error {
		for _, id := range ids {
			if err := a.catalog.MarkDeleted(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Marked %s deleted\n", id.String())
		}
		return nil
	})
}

func (c *cli) purge(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandPurge, flag.ContinueOnError)
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	ids, err := parseBitstreamIds(fs.Args())
	if err != nil {
		return err
	}
	return c.withApp(ctx, s, func(a *app) error {
		for _, id := range ids {
			if err := a.ledger.DeleteRecord(ctx, id); err != nil {
				return err
			}
			if err := a.catalog.Purge(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Purged %s\n", id.String())
		}
		return nil
	})
}

func (c *cli) schedule(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandSchedule, flag.ContinueOnError)
	exclude := fs.Bool("exclude", false, "exclude the bitstreams from checking instead of including them")
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	ids, err := parseBitstreamIds(fs.Args())
	if err != nil {
		return err
	}
	return c.withApp(ctx, s, func(a *app) error {
		for _, id := range ids {
			if err := a.ledger.SetScheduled(ctx, id, !*exclude); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *cli) auditVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(subcommandAuditVerify, flag.ContinueOnError)
	publicKey := fs.String("publicKey", "", "ed25519 public key (file or base64) the entries must be signed with")
	s, err := c.loadSettings(fs, args)
	if err != nil {
		return err
	}
	path := s.AuditLogPath()
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		return fmt.Errorf("%w: fixity audit-verify [-publicKey key] <audit log>", ErrUsage)
	}
	var signatureVerifier auditlog.Verifier
	if *publicKey != "" {
		pub, err := auditlog.LoadEd25519PublicKey(*publicKey)
		if err != nil {
			return err
		}
		signatureVerifier = auditlog.NewEd25519Verifier(pub)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	checks, err := auditlog.ValidateChain(f, signatureVerifier)
	if err != nil {
		return fmt.Errorf("audit log %s is invalid: %w", path, err)
	}
	fmt.Fprintf(c.stdout, "Audit log %s is valid: %d checks\n", path, checks)
	return nil
}

func (c *cli) auditKeygen(ctx context.Context, args []string) error {
	pub, priv, err := auditlog.GenerateEd25519KeyPair()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "private: %s\npublic:  %s\n", base64.StdEncoding.EncodeToString(priv), base64.StdEncoding.EncodeToString(pub))
	return nil
}
