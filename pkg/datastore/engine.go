package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/photonchat/photon/pkg/crypto"
)

const (
	// DefaultWriteQueueSize is the capacity of the writer's job queue.
	DefaultWriteQueueSize = 999

	// DefaultHistoryLoadCount is how many recent messages are mirrored at startup.
	DefaultHistoryLoadCount = 510
)

var (
	ErrQueueFull       = errors.New("datastore: write queue full")
	ErrClosed          = errors.New("datastore: closed")
	ErrUserExists      = errors.New("datastore: user already exists")
	ErrUserNotFound    = errors.New("datastore: user not found")
	ErrMessageNotFound = errors.New("datastore: message not found")
	ErrMessageDeleted  = errors.New("datastore: message was deleted")
)

// Options configure an Engine.
type Options struct {
	WriteQueueSize   int
	HistoryLoadCount int
	Logger           *slog.Logger

	// PasswordParams overrides the Argon2id cost; zero means crypto.DefaultParams.
	PasswordParams crypto.Params
}

// job is one mutation waiting for the writer goroutine.
type job struct {
	ctx   context.Context
	op    string
	stmt  string
	args  []any
	after func(res sql.Result) error // runs on the writer after the statement commits
	fail  func()                     // runs on the writer when the job fails
	done  chan error
}

// Engine owns the SQLite database. All mutations are serialized through a
// single writer goroutine holding the only writable connection; queries go to
// a separate read-only pool.
type Engine struct {
	wdb    *sql.DB
	rdb    *sql.DB
	mirror *Mirror
	jobs   chan *job

	mu     sync.RWMutex // guards closed and sends on jobs
	closed bool
	seq    sync.Mutex // orders mirror appends with queue sends
	wg     sync.WaitGroup

	logger *slog.Logger
	tracer trace.Tracer
	params crypto.Params
}

// Open opens (or creates) the database at path, runs migrations, loads the
// recent history into the mirror and starts the writer.
func Open(path string, opts Options) (*Engine, error) {
	if opts.WriteQueueSize <= 0 {
		opts.WriteQueueSize = DefaultWriteQueueSize
	}
	if opts.HistoryLoadCount <= 0 {
		opts.HistoryLoadCount = DefaultHistoryLoadCount
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PasswordParams == (crypto.Params{}) {
		opts.PasswordParams = crypto.DefaultParams
	}

	wdb, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("datastore: open writer: %w", err)
	}
	wdb.SetMaxOpenConns(1)

	ctx := context.Background()
	// WAL lets the read pool run alongside the writer
	if _, err := wdb.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = wdb.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if err := migrate(ctx, wdb); err != nil {
		_ = wdb.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}

	rdb, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		_ = wdb.Close()
		return nil, fmt.Errorf("datastore: open reader: %w", err)
	}

	e := &Engine{
		wdb:    wdb,
		rdb:    rdb,
		mirror: NewMirror(),
		jobs:   make(chan *job, opts.WriteQueueSize),
		logger: opts.Logger.With("component", "datastore"),
		tracer: otel.Tracer("photon/datastore"),
		params: opts.PasswordParams,
	}
	if err := e.loadHistory(ctx, opts.HistoryLoadCount); err != nil {
		_ = rdb.Close()
		_ = wdb.Close()
		return nil, err
	}

	e.wg.Add(1)
	go e.writer()
	return e, nil
}

// Close stops accepting mutations, drains the queue and closes both handles.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	e.wg.Wait()
	return errors.Join(e.rdb.Close(), e.wdb.Close())
}

// Mirror returns the in-memory message history.
func (e *Engine) Mirror() *Mirror {
	return e.mirror
}

// QueueLen reports how many mutations are waiting for the writer.
func (e *Engine) QueueLen() int {
	return len(e.jobs)
}

func (e *Engine) writer() {
	defer e.wg.Done()
	for j := range e.jobs {
		j.done <- e.run(j)
	}
}

func (e *Engine) run(j *job) error {
	ctx, span := e.tracer.Start(j.ctx, "datastore."+j.op,
		trace.WithAttributes(attribute.String("db.system", "sqlite")))
	defer span.End()

	res, err := e.wdb.ExecContext(ctx, j.stmt, j.args...)
	if err == nil && j.after != nil {
		err = j.after(res)
	}
	if err != nil {
		if j.fail != nil {
			j.fail()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("write failed", "op", j.op, "err", err)
	}
	return err
}

// enqueue hands a job to the writer without blocking. The caller must hold seq
// when ordering against the mirror matters.
func (e *Engine) enqueue(j *job) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// wait blocks until the writer resolves j. The job still runs if ctx ends first.
func (e *Engine) wait(ctx context.Context, j *job) error {
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit enqueues a mutation and waits for its result.
func (e *Engine) submit(ctx context.Context, op, stmt string, after func(sql.Result) error, args ...any) error {
	j := newJob(ctx, op, stmt, after, args)
	if err := e.enqueue(j); err != nil {
		return err
	}
	return e.wait(ctx, j)
}

func newJob(ctx context.Context, op, stmt string, after func(sql.Result) error, args []any) *job {
	return &job{
		ctx:   context.WithoutCancel(ctx),
		op:    op,
		stmt:  stmt,
		args:  args,
		after: after,
		done:  make(chan error, 1),
	}
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const (
	dbTimeLayout      = "2006-01-02 15:04:05.000000"
	dbTimeParseLayout = "2006-01-02 15:04:05" // also accepts a fractional second
)

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeParseLayout, value, time.UTC)
}
