package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goosewin/qforia/internal/backend"
	_ "github.com/goosewin/qforia/internal/backend/claude"
	_ "github.com/goosewin/qforia/internal/backend/gemini"
	"github.com/goosewin/qforia/internal/config"
	"github.com/goosewin/qforia/internal/core"
	"github.com/goosewin/qforia/internal/notify"
	"github.com/goosewin/qforia/internal/state"
	"github.com/goosewin/qforia/internal/ui"
	"go.uber.org/zap"
)

const webhookTimeout = 10 * time.Second

// fanoutParams are the already-merged inputs of one run. Empty fields fall
// back to configuration.
type fanoutParams struct {
	Query    string
	Mode     string
	Backend  string
	Model    string
	APIKey   string
	Session  string
	Webhook  string
	Strategy string
	Timeout  time.Duration
	Spinner  bool
	Origin   state.Origin
}

type temperatureSetter interface {
	SetTemperature(value float32)
}

type maxTokensSetter interface {
	SetMaxTokens(value int64)
}

// executeFanout resolves configuration, runs the fan-out, persists the
// outcome under the session and sends the webhook notification.
func executeFanout(ctx context.Context, params fanoutParams) (state.Record, core.RunResult, error) {
	mode, err := core.ParseMode(firstNonEmpty(params.Mode, config.GetString("defaults.mode", string(core.ModeSimple))))
	if err != nil {
		return state.Record{}, core.RunResult{}, err
	}
	request := core.FanoutRequest{Query: strings.TrimSpace(params.Query), Mode: mode}
	if request.Query == "" {
		return state.Record{}, core.RunResult{}, errors.New("query is required")
	}
	strategy, err := core.ParseStrategy(firstNonEmpty(params.Strategy, config.GetString("parse.strategy", "")))
	if err != nil {
		return state.Record{}, core.RunResult{}, err
	}

	instance, backendName, err := backend.Resolve(firstNonEmpty(params.Backend, config.GetString("defaults.backend", backend.DefaultName())))
	if err != nil {
		return state.Record{}, core.RunResult{}, err
	}
	configureBackend(instance, backendName)

	model := resolveModel(instance, backendName, params.Model)

	apiKey := config.APIKey(instance.CredentialKey(), params.APIKey)
	if apiKey == "" {
		return state.Record{}, core.RunResult{Request: request, Status: core.StatusFailed, Err: core.ErrCredentialMissing}, core.ErrCredentialMissing
	}
	if err := instance.CheckCredential(apiKey); err != nil {
		err = fmt.Errorf("%w: %v", core.ErrCredentialInvalid, err)
		return state.Record{}, core.RunResult{Request: request, Status: core.StatusFailed, Err: err}, err
	}

	template, err := core.ResolvePromptTemplate(config.GetString("prompt.template_file", ""))
	if err != nil {
		return state.Record{}, core.RunResult{}, err
	}

	session := firstNonEmpty(params.Session, config.GetString("defaults.session", state.DefaultSession))
	origin := params.Origin
	if origin == "" {
		origin = state.OriginCLI
	}
	record, err := state.Begin(session, origin, request, backendName, model)
	if err != nil {
		logger.Warn("Could not record run start", zap.String("session", session), zap.Error(err))
	}

	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	label := "Generating " + mode.Label() + " fan-out with " + model + "..."
	run, runErr := ui.WithSpinner(ctx, os.Stderr, label, params.Spinner, func(ctx context.Context) (core.RunResult, error) {
		return core.Run(ctx, core.RunOptions{
			Request:        request,
			BackendName:    backendName,
			Backend:        instance,
			Model:          model,
			APIKey:         apiKey,
			PromptTemplate: template,
			Strategy:       strategy,
			Holder:         holder,
			Logger:         logger.With(zap.String("run_id", record.RunID), zap.String("session", session)),
		})
	})
	if runErr != nil && errors.Is(ctx.Err(), context.Canceled) && !errors.Is(runErr, context.Canceled) {
		runErr = fmt.Errorf("%w: %w", context.Canceled, runErr)
		run.Err = runErr
	}
	if run.Status == "" && runErr != nil {
		run.Status = core.StatusFailed
		run.Err = runErr
	}

	finished, err := state.Finish(record, run)
	if err != nil {
		logger.Warn("Could not record run result", zap.String("session", session), zap.Error(err))
	}

	sendWebhook(firstNonEmpty(params.Webhook, config.GetString("notify.webhook", "")), finished, run)
	return finished, run, runErr
}

// resolveModel picks the model for backendName: the explicit value, then
// <backend>.model, then defaults.model when the backend advertises it, then
// the backend's first model.
func resolveModel(instance backend.Backend, backendName, explicit string) string {
	if model := firstNonEmpty(explicit, config.GetString(backendName+".model", "")); model != "" {
		return model
	}
	if model := config.GetString("defaults.model", ""); model != "" && supportsModel(instance, model) {
		return model
	}
	return backend.DefaultModel(instance)
}

func supportsModel(instance backend.Backend, model string) bool {
	for _, candidate := range instance.GetModels() {
		if candidate == model {
			return true
		}
	}
	return false
}

func configureBackend(instance backend.Backend, name string) {
	if setter, ok := instance.(temperatureSetter); ok {
		setter.SetTemperature(float32(config.GetFloat(name+".temperature", 1.0)))
	}
	if setter, ok := instance.(maxTokensSetter); ok {
		if value := config.GetInt(name+".max_tokens", 0); value > 0 {
			setter.SetMaxTokens(int64(value))
		}
	}
}

// sendWebhook never fails the run; delivery problems are only logged.
func sendWebhook(url string, record state.Record, run core.RunResult) {
	if url == "" {
		return
	}
	event := notify.EventFromRun(record.Session, record.RunID, run)
	if err := notify.Notify(context.Background(), url, event, webhookTimeout); err != nil {
		logger.Warn("Webhook notification failed", zap.Error(err))
		return
	}
	logger.Debug("Webhook notification sent", zap.String("status", string(run.Status)))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
