// Package state persists the last fan-out run of each session so it can be
// shown or exported later without another model call.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/goosewin/qforia/internal/core"
)

// DefaultSession is used when no session name is given.
const DefaultSession = "default"

const (
	StatusRunning     = "running"
	StatusInterrupted = "interrupted"
)

// Origin identifies the kind of process that started a run.
type Origin string

const (
	OriginCLI    Origin = "cli"
	OriginServer Origin = "server"
)

// CleanupMode controls how interrupted runs are handled.
type CleanupMode string

const (
	CleanupMark   CleanupMode = "mark"
	CleanupRemove CleanupMode = "remove"
)

// Record is the stored last run of a session.
type Record struct {
	Session    string             `json:"session"`
	RunID      string             `json:"run_id"`
	Query      string             `json:"query"`
	Mode       core.Mode          `json:"mode"`
	Backend    string             `json:"backend,omitempty"`
	Model      string             `json:"model,omitempty"`
	Status     string             `json:"status"`
	ErrorKind  string             `json:"error_kind,omitempty"`
	Error      string             `json:"error,omitempty"`
	Raw        string             `json:"raw,omitempty"`
	Result     *core.FanoutResult `json:"result,omitempty"`
	PID        int                `json:"pid,omitempty"`
	Origin     Origin             `json:"origin,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// Finished reports whether the run has completed, successfully or not.
func (r Record) Finished() bool {
	return r.Status != StatusRunning && r.Status != StatusInterrupted
}

// Run rebuilds the in-process view of a stored record.
func (r Record) Run() core.RunResult {
	run := core.RunResult{
		Request:   core.FanoutRequest{Query: r.Query, Mode: r.Mode},
		Backend:   r.Backend,
		Model:     r.Model,
		Raw:       r.Raw,
		Result:    r.Result,
		Status:    core.Status(r.Status),
		StartedAt: r.StartedAt,
	}
	if r.FinishedAt != nil {
		run.Duration = r.FinishedAt.Sub(r.StartedAt)
	}
	if r.Error != "" {
		run.Err = errors.New(r.Error)
	}
	return run
}

type stateFile struct {
	Sessions map[string]Record `json:"sessions"`
}

// InitState creates the state file, replacing it when it cannot be decoded.
func InitState() error {
	return withLock(initStateUnlocked)
}

// Begin clears the session's previous result and records a new run as
// running. The returned record carries a fresh run ID.
func Begin(session string, origin Origin, request core.FanoutRequest, backend, model string) (Record, error) {
	session = normalizeSession(session)
	record := Record{
		Session:   session,
		RunID:     uuid.NewString(),
		Query:     request.Query,
		Mode:      request.Mode,
		Backend:   backend,
		Model:     model,
		Status:    StatusRunning,
		PID:       os.Getpid(),
		Origin:    origin,
		StartedAt: time.Now().UTC(),
	}
	return record, Save(record)
}

// Finish stores the outcome of run under record's session and run ID.
func Finish(record Record, run core.RunResult) (Record, error) {
	finished := time.Now().UTC()
	record.Backend = run.Backend
	record.Model = run.Model
	record.Status = string(run.Status)
	record.Raw = run.Raw
	record.Result = run.Result
	record.PID = 0
	record.FinishedAt = &finished
	if run.Err != nil {
		record.ErrorKind = core.ErrorKind(run.Err)
		record.Error = run.Err.Error()
		if record.Status == "" {
			record.Status = string(core.StatusFailed)
		}
		if errors.Is(run.Err, context.Canceled) {
			record.Status = StatusInterrupted
		}
	}
	return record, Save(record)
}

// Interrupt signals the process running session's fan-out and marks the
// record interrupted. Runs started by the API server are only marked, since
// their process serves other sessions too. It reports false when the session
// has no running run.
func Interrupt(session string) (Record, bool, error) {
	session = normalizeSession(session)

	var record Record
	var stopped bool
	err := withLock(func() error {
		state, err := loadUnlocked()
		if err != nil {
			return err
		}
		current, ok := state.Sessions[session]
		if !ok {
			return fmt.Errorf("session %q not found", session)
		}
		record = current
		if current.Status != StatusRunning {
			return nil
		}

		if current.Origin != OriginServer && current.PID > 0 && current.PID != os.Getpid() && processAlive(current.PID) {
			if err := terminateProcess(current.PID); err != nil {
				return fmt.Errorf("stop session %q: %w", session, err)
			}
		}
		current.Status = StatusInterrupted
		current.PID = 0
		state.Sessions[session] = current
		record = current
		stopped = true
		return writeStateFile(state)
	})
	return record, stopped, err
}

// Save upserts a record.
func Save(record Record) error {
	record.Session = normalizeSession(record.Session)
	if record.RunID == "" {
		record.RunID = uuid.NewString()
	}

	return withLock(func() error {
		state, err := loadUnlocked()
		if err != nil {
			return err
		}
		state.Sessions[record.Session] = record
		return writeStateFile(state)
	})
}

// Get returns the last run of session.
func Get(session string) (Record, bool, error) {
	session = normalizeSession(session)

	var record Record
	var found bool
	err := withLock(func() error {
		state, err := loadUnlocked()
		if err != nil {
			return err
		}
		record, found = state.Sessions[session]
		return nil
	})
	return record, found, err
}

// List returns all records ordered by session name.
func List() ([]Record, error) {
	var records []Record
	err := withLock(func() error {
		state, err := loadUnlocked()
		if err != nil {
			return err
		}
		records = make([]Record, 0, len(state.Sessions))
		for _, record := range state.Sessions {
			records = append(records, record)
		}
		return nil
	})
	sort.Slice(records, func(i, j int) bool {
		return records[i].Session < records[j].Session
	})
	return records, err
}

// Delete removes a session's record.
func Delete(session string) error {
	session = normalizeSession(session)
	return withLock(func() error {
		state, err := loadUnlocked()
		if err != nil {
			return err
		}
		if _, ok := state.Sessions[session]; !ok {
			return fmt.Errorf("session %q not found", session)
		}
		delete(state.Sessions, session)
		return writeStateFile(state)
	})
}

// CleanupStale handles runs still marked running whose process is gone.
func CleanupStale(mode CleanupMode) ([]string, error) {
	if mode == "" {
		mode = CleanupMark
	}
	if mode != CleanupMark && mode != CleanupRemove {
		return nil, fmt.Errorf("invalid cleanup mode %q", mode)
	}

	cleaned := []string{}
	err := withLock(func() error {
		state, err := loadUnlocked()
		if err != nil {
			return err
		}

		for name, record := range state.Sessions {
			if record.Status != StatusRunning || record.PID <= 0 || processAlive(record.PID) {
				continue
			}
			cleaned = append(cleaned, name)
			if mode == CleanupRemove {
				delete(state.Sessions, name)
				continue
			}
			record.Status = StatusInterrupted
			record.PID = 0
			state.Sessions[name] = record
		}

		if len(cleaned) == 0 {
			return nil
		}
		return writeStateFile(state)
	})
	sort.Strings(cleaned)
	return cleaned, err
}

func normalizeSession(session string) string {
	session = strings.TrimSpace(session)
	if session == "" {
		return DefaultSession
	}
	return session
}

func loadUnlocked() (stateFile, error) {
	if err := initStateUnlocked(); err != nil {
		return stateFile{}, err
	}
	return readStateUnlocked()
}

func initStateUnlocked() error {
	path := stateFilePath()
	if path == "" {
		return errors.New("state file path unavailable")
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return writeStateFile(stateFile{})
		}
		return fmt.Errorf("stat state file: %w", err)
	}

	if _, err := readStateUnlocked(); err != nil {
		return writeStateFile(stateFile{})
	}
	return nil
}

func readStateUnlocked() (stateFile, error) {
	data, err := os.ReadFile(stateFilePath())
	if err != nil {
		return stateFile{}, fmt.Errorf("read state file: %w", err)
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return stateFile{}, fmt.Errorf("decode state file: %w", err)
	}
	if state.Sessions == nil {
		state.Sessions = map[string]Record{}
	}
	return state, nil
}

func writeStateFile(state stateFile) error {
	if state.Sessions == nil {
		state.Sessions = map[string]Record{}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	path := stateFilePath()
	if path == "" {
		return errors.New("state file path unavailable")
	}
	return writeFileAtomic(path, data)
}
