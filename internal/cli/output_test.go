package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countReport is a minimal Report for exercising the printer.
type countReport struct {
	Count int `json:"count"`
}

func (r countReport) WriteText(w io.Writer, verbose bool) {
	if verbose {
		fmt.Fprintln(w, "counting")
	}
	fmt.Fprintf(w, "count=%d\n", r.Count)
}

func testPrinter(format string, verbose bool) (*printer, *bytes.Buffer, *bytes.Buffer) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	return &printer{json: format == "json", verbose: verbose, out: out, diag: diag}, out, diag
}

func TestPrinter_ReportJSON(t *testing.T) {
	p, out, _ := testPrinter("json", false)

	require.NoError(t, p.report(countReport{Count: 3}))

	var resp struct {
		Status string         `json:"status"`
		Data   countReport    `json:"data"`
		Error  *ResponseError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Count)
	assert.Nil(t, resp.Error)
}

func TestPrinter_ReportText(t *testing.T) {
	p, out, _ := testPrinter("text", true)

	require.NoError(t, p.report(countReport{Count: 3}))
	assert.Equal(t, "counting\ncount=3\n", out.String())
}

func TestPrinter_FailJSON(t *testing.T) {
	p, out, _ := testPrinter("json", false)
	cause := errors.New("disk full")

	err := p.fail(countReport{Count: 1}, failure(ErrCodeApplyFailed, "failed to apply triggers", cause))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string         `json:"status"`
		Data   countReport    `json:"data"`
		Error  *ResponseError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Count, "partial report kept")
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeApplyFailed, resp.Error.Code)
	assert.Equal(t, "failed to apply triggers: disk full", resp.Error.Message)
}

func TestPrinter_FailWithoutReport(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		p, out, _ := testPrinter("json", false)

		err := p.fail(nil, commandError(ErrCodeDatabase, "failed to open database", nil))
		assert.Equal(t, ExitCommandError, GetExitCode(err))

		var resp Response
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		assert.Nil(t, resp.Data)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeDatabase, resp.Error.Code)
	})

	t.Run("text", func(t *testing.T) {
		p, out, _ := testPrinter("text", false)

		err := p.fail(nil, commandError(ErrCodeDatabase, "failed to open database", nil))
		assert.EqualError(t, err, "failed to open database")
		assert.Empty(t, out.String(), "main prints text failures")
	})
}

func TestPrinter_Debugf(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    string
	}{
		{"verbose_enabled", true, "Processing test.cue\n"},
		{"verbose_disabled", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out, diag := testPrinter("json", tt.verbose)

			p.debugf("Processing %s", "test.cue")

			assert.Equal(t, tt.want, diag.String())
			assert.Empty(t, out.String(), "diagnostics never reach stdout")
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")

	wrapped := commandError(ErrCodeEventSource, "failed to open event source", cause)
	assert.Equal(t, "failed to open event source: boom", wrapped.Error())
	assert.Equal(t, ErrCodeEventSource, wrapped.Reason)
	assert.ErrorIs(t, wrapped, cause)

	bare := failure(ErrCodeScenarioFailed, "2 scenario(s) failed", nil)
	assert.Equal(t, "2 scenario(s) failed", bare.Error())
	assert.Nil(t, bare.Unwrap())

	joined := fmt.Errorf("run: %w", bare)
	assert.Equal(t, ExitFailure, GetExitCode(joined))
}

func TestRunSummary_WriteText(t *testing.T) {
	var buf bytes.Buffer
	RunSummary{Processed: 4, Source: "stdin"}.WriteText(&buf, true)
	assert.Equal(t, "Source: stdin\nProcessed 4 event(s)\n", buf.String())
}

func TestSourceName(t *testing.T) {
	assert.Equal(t, "stdin", sourceName(&RunOptions{Events: "-"}))
	assert.Equal(t, "events.jsonl", sourceName(&RunOptions{Events: "events.jsonl"}))
	assert.Equal(t, "redis://localhost:6379/orders",
		sourceName(&RunOptions{RedisAddr: "localhost:6379", RedisChannel: "orders"}))
}
