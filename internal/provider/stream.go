package provider

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// maxEventSize bounds a single SSE line.
const maxEventSize = 1 << 20

// eventDecoder turns one SSE data payload into a text fragment. done ends the stream.
type eventDecoder func(data []byte) (text string, done bool, err error)

// emit delivers a chunk unless the consumer has gone away.
func emit(ctx context.Context, ch chan<- *StreamChunk, c *StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// readSSE reads "data:" lines from body until the decoder reports done, the
// body ends, or ctx is cancelled. It always closes body and ch.
func (b *base) readSSE(ctx context.Context, body io.ReadCloser, ch chan<- *StreamChunk, decode eventDecoder) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[len("data:"):])
		if len(data) == 0 {
			continue
		}
		if string(data) == "[DONE]" {
			return
		}
		text, done, err := decode(data)
		var upErr *UpstreamError
		if errors.As(err, &upErr) {
			emit(ctx, ch, &StreamChunk{Err: err})
			return
		}
		if err != nil {
			b.logger.Debug("skipping undecodable stream event", zap.Error(err))
			continue
		}
		if text != "" && !emit(ctx, ch, &StreamChunk{Content: text}) {
			return
		}
		if done {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		emit(ctx, ch, &StreamChunk{Err: &UpstreamError{Provider: b.config.ID, Message: "read stream", Err: err}})
	}
}

// readRaw forwards the body as-is, for backends that stream plain text.
func (b *base) readRaw(ctx context.Context, body io.ReadCloser, ch chan<- *StreamChunk) {
	defer close(ch)
	defer body.Close()

	buf := make([]byte, 1024)
	var pending []byte
	for {
		n, err := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := completePrefix(pending)
			if cut > 0 {
				text := string(pending[:cut])
				pending = append(pending[:0], pending[cut:]...)
				if !emit(ctx, ch, &StreamChunk{Content: text}) {
					return
				}
			}
		}
		if err != nil {
			if len(pending) > 0 && !emit(ctx, ch, &StreamChunk{Content: string(pending)}) {
				return
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				emit(ctx, ch, &StreamChunk{Err: &UpstreamError{Provider: b.config.ID, Message: "read stream", Err: err}})
			}
			return
		}
	}
}

// completePrefix returns the length of the longest prefix of p that does not
// end inside a multi-byte UTF-8 sequence.
func completePrefix(p []byte) int {
	start := len(p) - utf8.UTFMax + 1
	if start < 0 {
		start = 0
	}
	for i := len(p) - 1; i >= start; i-- {
		if utf8.RuneStart(p[i]) {
			if utf8.FullRune(p[i:]) {
				return len(p)
			}
			return i
		}
	}
	return len(p)
}

// simulateStream produces a stream for backends without native streaming: the
// full answer is fetched first, then replayed word by word. Nothing arrives
// before the whole answer is ready.
func simulateStream(ctx context.Context, res *ChatResult) <-chan *StreamChunk {
	ch := make(chan *StreamChunk, 64)
	go func() {
		defer close(ch)
		for _, w := range splitWords(res.Content) {
			if !emit(ctx, ch, &StreamChunk{Content: w}) {
				return
			}
		}
	}()
	return ch
}

// splitWords splits s on whitespace, keeping a single trailing space on every
// word but the last.
func splitWords(s string) []string {
	words := strings.Fields(s)
	for i := 0; i < len(words)-1; i++ {
		words[i] += " "
	}
	return words
}

// Collect drains a stream into one string. It returns the first error carried
// by the stream, together with the text received so far.
func Collect(ch <-chan *StreamChunk) (string, error) {
	var sb strings.Builder
	for c := range ch {
		if c.Err != nil {
			// drain so the producer can exit
			for range ch {
			}
			return sb.String(), c.Err
		}
		sb.WriteString(c.Content)
	}
	return sb.String(), nil
}
