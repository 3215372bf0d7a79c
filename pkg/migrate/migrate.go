package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Command is a goose operation that needs a live postgres connection.
type Command string

const (
	CommandUp      Command = "up"
	CommandDown    Command = "down"
	CommandRedo    Command = "redo"
	CommandStatus  Command = "status"
	CommandVersion Command = "version"
)

// Outcome describes one migration touched by a command. Status reports one
// outcome per known migration without applying anything.
type Outcome struct {
	Version int64
	Path    string
	Applied bool
	Detail  string
}

// Runner applies the SQL files of one directory with a goose provider.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, dir string) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	// sqlite runs use AutoMigrate instead, see MaybeRunDev
	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Run executes cmd. target is only read by CommandVersion.
func (r *Runner) Run(ctx context.Context, cmd Command, target string) ([]Outcome, error) {
	switch cmd {
	case CommandUp:
		results, err := r.provider.Up(ctx)
		return fromResults(results), wrapCommand(cmd, err)
	case CommandDown:
		result, err := r.provider.Down(ctx)
		return fromResults([]*goose.MigrationResult{result}), wrapCommand(cmd, err)
	case CommandRedo:
		down, err := r.provider.Down(ctx)
		if err != nil {
			return fromResults([]*goose.MigrationResult{down}), wrapCommand(cmd, err)
		}
		up, err := r.provider.UpByOne(ctx)
		return fromResults([]*goose.MigrationResult{down, up}), wrapCommand(cmd, err)
	case CommandStatus:
		statuses, err := r.provider.Status(ctx)
		if err != nil {
			return nil, wrapCommand(cmd, err)
		}
		out := make([]Outcome, 0, len(statuses))
		for _, st := range statuses {
			if st == nil || st.Source == nil {
				continue
			}
			o := Outcome{Version: st.Source.Version, Path: st.Source.Path, Applied: st.State == goose.StateApplied}
			if o.Applied {
				o.Detail = "applied " + st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			} else {
				o.Detail = "pending"
			}
			out = append(out, o)
		}
		return out, nil
	case CommandVersion:
		return r.toVersion(ctx, target)
	default:
		return nil, fmt.Errorf("unknown migrate command %q", cmd)
	}
}

// toVersion moves the schema up or down until target is the newest applied
// migration.
func (r *Runner) toVersion(ctx context.Context, raw string) ([]Outcome, error) {
	if raw == "" {
		return nil, fmt.Errorf("target version is required")
	}
	target, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", raw, err)
	}

	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = r.provider.UpTo(ctx, target)
	default:
		results, err = r.provider.DownTo(ctx, target)
	}
	if err != nil {
		return fromResults(results), fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return fromResults(results), nil
}

func fromResults(results []*goose.MigrationResult) []Outcome {
	out := make([]Outcome, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		o := Outcome{
			Version: res.Source.Version,
			Path:    res.Source.Path,
			Applied: res.Error == nil,
			Detail:  fmt.Sprintf("%s in %s", res.Direction, res.Duration),
		}
		if res.Error != nil {
			o.Detail = fmt.Sprintf("%s failed: %v", res.Direction, res.Error)
		}
		out = append(out, o)
	}
	return out
}

func wrapCommand(cmd Command, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", cmd, err)
}
