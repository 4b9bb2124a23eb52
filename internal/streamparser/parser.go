// Package streamparser reassembles an SSE byte stream into a UserResponse,
// capturing time-to-first-token at the earliest possible instant.
//
// Bytes are appended to an internal buffer, complete `\n\n`-delimited frames
// are split off eagerly, and any remaining `data: ` tail is additionally
// tested for completeness by attempting a JSON parse (or matching the
// `[DONE]` terminator) so a frame can be emitted before its trailing blank
// line ever arrives. Line-buffered scanning cannot offer this early-emit
// behavior, which is why accurate TTFT measurement requires working at the
// byte level rather than the line level.
package streamparser

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/basetenlabs/loadbench/internal/model"
)

const doneMarker = "[DONE]"

// Clock returns the current wall-clock time; overridable in tests.
type Clock func() time.Time

// Tokenizer estimates a token count for a chunk of plain text, used only in
// plain-prompt mode where there is no explicit per-token SSE frame.
type Tokenizer func(text string) int

// Parser reassembles one response's byte stream into a UserResponse. It is
// not safe for concurrent use — one Parser is owned by exactly one in-flight
// request.
type Parser struct {
	now              Clock
	plainText        bool
	tokenizer        Tokenizer
	startTime        time.Time
	numPrefillTokens int
	hasPrefill       bool

	buf bytes.Buffer

	resp                model.UserResponse
	ttftSet             bool
	sawPopulatedChoices bool
	sawAnyByteChunk     bool
	usageSeen       bool
	done            bool
	streamErr       error
}

// Option configures a Parser at construction.
type Option func(*Parser)

// WithClock overrides the wall-clock source (for deterministic tests).
func WithClock(now Clock) Option {
	return func(p *Parser) { p.now = now }
}

// WithPlainText switches the parser into the plain-prompt variant, using tok
// to estimate token counts.
func WithPlainText(tok Tokenizer) Option {
	return func(p *Parser) {
		p.plainText = true
		p.tokenizer = tok
	}
}

// New creates a Parser for one response body. startTime is the instant the
// request was sent; when hasPrefill is true, numPrefillTokens is the
// response's NumPrefillTokens and a `usage` frame does not replace it. When
// hasPrefill is false, a `usage` frame's non-zero prompt_tokens fills it in.
func New(startTime time.Time, numPrefillTokens int, hasPrefill bool, opts ...Option) *Parser {
	p := &Parser{
		now:              time.Now,
		startTime:        startTime,
		numPrefillTokens: numPrefillTokens,
		hasPrefill:       hasPrefill,
	}
	p.resp.StartTime = startTime
	p.resp.NumPrefillTokens = numPrefillTokens
	p.resp.HasPrefillTokens = hasPrefill
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed appends one chunk of bytes as it arrives off the wire. It never
// suspends — it is pure CPU-bound framing work.
func (p *Parser) Feed(chunk []byte) {
	if p.done || len(chunk) == 0 {
		return
	}
	if p.plainText {
		p.feedPlainText(chunk)
		return
	}
	p.buf.Write(chunk)
	p.drainFrames()
}

func (p *Parser) feedPlainText(chunk []byte) {
	precedesFirstToken := !p.sawAnyByteChunk
	if precedesFirstToken {
		trimmed := bytes.TrimSpace(chunk)
		if len(trimmed) > 0 {
			p.sawAnyByteChunk = true
			if !p.ttftSet {
				p.resp.TimeAtFirstToken = p.now()
				p.ttftSet = true
			}
		}
	}
	p.resp.GeneratedText += string(chunk)
	if precedesFirstToken && !p.sawAnyByteChunk {
		// Whitespace-only chunk before the first token ever arrived: kept in
		// GeneratedText but not counted as a token.
		return
	}
	if p.tokenizer != nil {
		p.resp.TokensReceived += p.tokenizer(string(chunk))
	} else {
		p.resp.TokensReceived++
	}
}

// drainFrames extracts every complete `\n\n`-delimited frame currently
// buffered, then additionally checks whether the remaining tail is itself a
// complete `data: ` frame lacking only its trailing blank line, so it can be
// emitted early.
func (p *Parser) drainFrames() {
	for {
		data := p.buf.Bytes()
		idx := bytes.Index(data, []byte("\n\n"))
		if idx < 0 {
			break
		}
		frame := data[:idx]
		p.buf.Next(idx + 2)
		p.handleFrame(frame)
		if p.done {
			return
		}
	}

	tail := p.buf.Bytes()
	if !bytes.HasPrefix(tail, []byte("data: ")) {
		return
	}
	payload := bytes.TrimSpace(tail[len("data: "):])
	if len(payload) == 0 {
		return
	}
	if bytes.Equal(payload, []byte(doneMarker)) {
		p.buf.Reset()
		p.handleFrame(tail)
		return
	}
	if json.Valid(payload) {
		p.buf.Reset()
		p.handleFrame(tail)
	}
}

func (p *Parser) handleFrame(frame []byte) {
	line := bytes.TrimSpace(frame)
	if len(line) == 0 {
		return
	}
	if bytes.HasPrefix(line, []byte(":")) {
		return // SSE comment
	}
	if !bytes.HasPrefix(line, []byte("data: ")) {
		return
	}
	payload := bytes.TrimSpace(line[len("data: "):])
	if bytes.Equal(payload, []byte(doneMarker)) {
		p.done = true
		return
	}

	var frameData sseFrame
	if err := json.Unmarshal(payload, &frameData); err != nil {
		// Malformed JSON in a frame: skip, continue.
		return
	}

	if frameData.Error != nil {
		code := frameData.Error.Code
		if code == 0 {
			code = -1
		}
		p.resp.StatusCode = code
		p.resp.ErrorMessage = frameData.Error.Message
		p.done = true
		p.streamErr = errServerSignaled
		return
	}

	if len(frameData.Choices) > 0 {
		p.sawPopulatedChoices = true
		if !p.ttftSet {
			p.resp.TimeAtFirstToken = p.now()
			p.ttftSet = true
		}
		choice := frameData.Choices[0]
		content := choice.Delta.Content
		if content == "" {
			content = choice.Delta.ReasoningContent
		}
		if content == "" {
			content = choice.Delta.Reasoning
		}
		if content != "" {
			p.resp.GeneratedText += content
			if !p.usageSeen {
				p.resp.TokensReceived++
			}
		}
		if choice.FinishReason != "" {
			p.resp.FinishReason = choice.FinishReason
		}
	}

	if frameData.Usage != nil {
		p.usageSeen = true
		if frameData.Usage.PromptTokens > 0 && !p.resp.HasPrefillTokens {
			p.resp.NumPrefillTokens = frameData.Usage.PromptTokens
			p.resp.HasPrefillTokens = true
		}
		// Usage is authoritative once present, overriding any running
		// delta-based token count.
		p.resp.TokensReceived = frameData.Usage.CompletionTokens
	}
}

var errServerSignaled = &parseError{"server-signaled error"}

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }

type sseFrame struct {
	Choices []sseChoice `json:"choices"`
	Usage   *sseUsage   `json:"usage"`
	Error   *sseError   `json:"error"`
}

type sseChoice struct {
	Index        int      `json:"index"`
	Delta        sseDelta `json:"delta"`
	FinishReason string   `json:"finish_reason"`
}

type sseDelta struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
	Reasoning        string `json:"reasoning"`
}

type sseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type sseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Finish is called once the body reader reaches EOF. It finalizes the
// UserResponse, including its failure-mode handling when no usable data ever
// arrived.
func (p *Parser) Finish(endTime time.Time) model.UserResponse {
	p.resp.EndTime = endTime

	if p.resp.ErrorMessage != "" {
		return p.resp // server-signaled error already set status/message
	}

	if p.plainText {
		if !p.sawAnyByteChunk {
			p.resp.StatusCode = 500
			p.resp.ErrorMessage = "No valid streaming data received"
			return p.resp
		}
		p.resp.StatusCode = 200
		return p.resp
	}

	if !p.sawPopulatedChoices && !p.usageSeen {
		p.resp.StatusCode = 500
		p.resp.ErrorMessage = "No valid streaming data received"
		return p.resp
	}

	p.resp.StatusCode = 200
	return p.resp
}
