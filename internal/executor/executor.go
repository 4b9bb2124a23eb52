// Package executor issues the single HTTP POST backing one sample and turns
// its response body into a model.UserResponse via the stream parser. The
// optional persistent-5xx run-failure predicate lives in internal/runner,
// which already counts consecutive failures across this package's
// responses; the executor itself stays a thin, breaker-free Doer caller.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/adapter"
	"github.com/basetenlabs/loadbench/internal/auth"
	"github.com/basetenlabs/loadbench/internal/model"
	"github.com/basetenlabs/loadbench/internal/streamparser"
	"github.com/basetenlabs/loadbench/internal/tracing"
	"github.com/basetenlabs/loadbench/internal/util"
)

// Doer is satisfied by *http.Client; kept as an interface so tests can swap
// in a fake transport without standing up a real listener.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config wires one Executor. Every field is resolved once at construction —
// no global mutable host/auth/disable-streaming flags.
type Config struct {
	BaseURL          string
	Auth             auth.Provider // nil means no Authorization header
	Builder          adapter.RequestBuilder
	Client           Doer // defaults to an *http.Client with a 120s timeout if nil
	DisableStreaming bool
	PlainText        bool
	Tokenizer        streamparser.Tokenizer
	Logger           *zap.Logger
}

// Executor issues one HTTP request per Do call and parses its body.
type Executor struct {
	cfg Config
}

// New builds an Executor, defaulting Client to an *http.Client with a 120s
// timeout when nil.
func New(cfg Config) *Executor {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 120 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Executor{cfg: cfg}
}

// Do builds the request body via the configured adapter, posts it, and
// streams the response through a streamparser.Parser. It never returns a
// transport error to the caller: transport failures are mapped to a
// UserResponse with StatusCode -1.
func (e *Executor) Do(ctx context.Context, userReq model.UserRequest) model.UserResponse {
	start := time.Now()

	url := e.cfg.Builder.BuildURL(e.cfg.BaseURL)
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	body, err := e.buildBody(userReq)
	if err != nil {
		return e.transportFailure(start, fmt.Errorf("executor: build body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return e.transportFailure(start, fmt.Errorf("executor: build http request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.cfg.Auth != nil {
		if token := e.cfg.Auth.Credentials(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := e.cfg.Client.Do(httpReq)
	if err != nil {
		return e.transportFailure(start, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return e.nonStreamingFailure(start, resp)
	}

	parser := e.newParser(start, userReq)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				// Read aborted by cancellation, a dropped connection, or any
				// other mid-stream failure: never let the parser's EOF-only
				// failure modes paper over this with a 200 or a generic 500.
				return e.transportFailure(start, readErr)
			}
			break
		}
		if ctx.Err() != nil {
			return e.transportFailure(start, ctx.Err())
		}
	}

	out := parser.Finish(time.Now())
	if out.StatusCode == 0 {
		out.StatusCode = resp.StatusCode
	}
	return out
}

func (e *Executor) buildBody(userReq model.UserRequest) (io.Reader, error) {
	raw, err := e.cfg.Builder.BuildBody(userReq)
	if err != nil {
		return nil, err
	}
	if e.cfg.DisableStreaming {
		if m, ok := raw.(map[string]any); ok {
			m["stream"] = false
		}
	}
	encoded, err := adapter.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(encoded), nil
}

func (e *Executor) newParser(start time.Time, userReq model.UserRequest) *streamparser.Parser {
	opts := []streamparser.Option{}
	if e.cfg.PlainText {
		opts = append(opts, streamparser.WithPlainText(e.cfg.Tokenizer))
	}
	return streamparser.New(start, userReq.NumPrefillTokens, userReq.NumPrefillTokens > 0, opts...)
}

// transportFailure maps a dial/timeout/context error to status_code=-1; a
// transport error must never reach the parser.
func (e *Executor) transportFailure(start time.Time, err error) model.UserResponse {
	now := time.Now()
	e.cfg.Logger.Debug("executor transport failure", zap.Error(err))
	return model.UserResponse{
		StatusCode:   -1,
		StartTime:    start,
		EndTime:      now,
		ErrorMessage: err.Error(),
	}
}

// nonStreamingFailure reads at most maxErrBody bytes of a non-2xx body and
// records the status plus that body, truncated to maxErrMessageLen runes, as
// the error message. Bytes past maxErrBody are left unread.
func (e *Executor) nonStreamingFailure(start time.Time, resp *http.Response) model.UserResponse {
	const maxErrBody = 2048
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	return model.UserResponse{
		StatusCode:   resp.StatusCode,
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorMessage: util.TruncateString(string(body), maxErrMessageLen, true),
	}
}

// maxErrMessageLen bounds ErrorMessage so one verbose error body doesn't
// dominate a dashboard log line.
const maxErrMessageLen = 500
