package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSpinnerDisabledCallsDirectly(t *testing.T) {
	var out bytes.Buffer
	value, err := WithSpinner(context.Background(), &out, "working", false, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Zero(t, out.Len())
}

func TestWithSpinnerReturnsResult(t *testing.T) {
	var out bytes.Buffer
	want := errors.New("boom")
	value, err := WithSpinner(context.Background(), &out, "Generating", true, func(context.Context) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return "partial", want
	})
	assert.ErrorIs(t, err, want)
	assert.Equal(t, "partial", value)
}

func TestWithSpinnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := WithSpinner(ctx, &out, "Generating", true, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelQuitsOnDone(t *testing.T) {
	m := newModel("Generating")
	assert.Contains(t, m.View(), "Generating")

	next, cmd := m.Update(doneMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, next.View())
}
