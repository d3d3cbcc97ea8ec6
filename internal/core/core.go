package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goosewin/qforia/internal/backend"
	"github.com/goosewin/qforia/internal/config"
	"go.uber.org/zap"
)

type RunOptions struct {
	Request        FanoutRequest
	BackendName    string
	Backend        backend.Backend
	Model          string
	APIKey         string
	PromptTemplate string
	Strategy       Strategy
	Holder         *ResultHolder
	Logger         *zap.Logger
}

// Run performs one fan-out: build the prompt, call the model once, interpret
// the output and publish the outcome to opts.Holder.
func Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if strings.TrimSpace(opts.APIKey) == "" {
		return RunResult{Status: StatusFailed, Err: ErrCredentialMissing}, ErrCredentialMissing
	}
	if err := opts.Validate(); err != nil {
		return RunResult{}, err
	}

	backendInstance, backendName, err := resolveBackend(opts)
	if err != nil {
		return RunResult{}, err
	}
	if err := backendInstance.CheckCredential(opts.APIKey); err != nil {
		return RunResult{Status: StatusFailed, Err: ErrCredentialInvalid}, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = backend.DefaultModel(backendInstance)
	}

	mode, _ := ParseMode(string(opts.Request.Mode))
	request := FanoutRequest{Query: strings.TrimSpace(opts.Request.Query), Mode: mode}

	template := opts.PromptTemplate
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	prompt := RenderPromptTemplate(template, request.Query, request.Mode)

	opts.Holder.Reset()

	run := RunResult{
		Request:   request,
		Backend:   backendName,
		Model:     model,
		Prompt:    prompt,
		StartedAt: time.Now(),
	}

	logger.Info("Starting fan-out",
		zap.String("backend", backendName),
		zap.String("model", model),
		zap.String("mode", string(request.Mode)),
		zap.Int("min_queries", MinQueries(request.Mode)),
		zap.Int("prompt_bytes", len(prompt)))

	raw, err := backendInstance.Generate(ctx, backend.GenerateOptions{
		Prompt: prompt,
		Model:  model,
		APIKey: opts.APIKey,
	})
	run.Raw = strings.TrimSpace(raw)
	run.Duration = time.Since(run.StartedAt)
	if err != nil {
		kind := ErrTransport
		if errors.Is(err, backend.ErrCredentialRejected) {
			kind = ErrCredentialInvalid
		}
		runErr := &RunError{Kind: kind, Raw: run.Raw, Err: err}
		logger.Warn("Model call failed", zap.String("kind", ErrorKind(runErr)), zap.Error(err))
		return publishFailure(opts.Holder, run, runErr)
	}

	logger.Debug("Model responded", zap.Int("raw_bytes", len(run.Raw)), zap.Duration("duration", run.Duration))

	strategy, _ := ParseStrategy(string(opts.Strategy))
	result, err := ParseFanoutWith(run.Raw, ParseOptions{Strategy: strategy})
	if err != nil {
		logger.Warn("Could not interpret model output", zap.String("kind", ErrorKind(err)), zap.Error(err))
		return publishFailure(opts.Holder, run, err)
	}

	run.Result = &result
	run.Status = StatusSuccess
	if result.ActualCount() == 0 {
		run.Status = StatusNoQueries
	}
	opts.Holder.Publish(run)

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("actual_count", result.ActualCount()),
		zap.Duration("duration", run.Duration),
	}
	if declared, ok := result.DeclaredCount(); ok {
		fields = append(fields, zap.Int("declared_count", declared))
	}
	logger.Info("Fan-out complete", fields...)
	if declared, actual, mismatch := result.CountMismatch(); mismatch {
		logger.Warn("Declared query count differs from produced count",
			zap.Int("declared_count", declared),
			zap.Int("actual_count", actual))
	}

	return run, nil
}

func publishFailure(holder *ResultHolder, run RunResult, err error) (RunResult, error) {
	run.Status = StatusFailed
	run.Result = nil
	run.Err = err
	holder.Publish(run)
	return run, err
}

func resolveBackend(opts RunOptions) (backend.Backend, string, error) {
	if opts.Backend != nil {
		name := strings.TrimSpace(opts.BackendName)
		if name == "" {
			name = "custom"
		}
		return opts.Backend, name, nil
	}
	name := strings.TrimSpace(opts.BackendName)
	if name == "" {
		if value, ok := config.GetConfig("defaults.backend"); ok {
			name = value
		}
	}
	return backend.Resolve(name)
}
