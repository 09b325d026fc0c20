package hub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nidhogg/modelhub/internal/embedding"
	"github.com/nidhogg/modelhub/internal/provider"
	"github.com/nidhogg/modelhub/internal/rag"
	"github.com/nidhogg/modelhub/internal/router"
	"github.com/nidhogg/modelhub/internal/vectorstore"
	"go.uber.org/zap"
)

// fakeProvider records the last request and answers with a fixed reply.
type fakeProvider struct {
	desc      provider.Descriptor
	available bool
	reply     string
	err       error
	last      *provider.ChatRequest
}

func (f *fakeProvider) ID() string                      { return f.desc.ID }
func (f *fakeProvider) Name() string                    { return f.desc.Name }
func (f *fakeProvider) Descriptor() provider.Descriptor { return f.desc }
func (f *fakeProvider) Available() bool                 { return f.available }

func (f *fakeProvider) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	n := 5
	return &provider.ChatResult{Content: f.reply, ProviderID: f.desc.ID, ModelID: req.Model, TokensUsed: &n}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req *provider.ChatRequest) (<-chan *provider.StreamChunk, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan *provider.StreamChunk, 2)
	ch <- &provider.StreamChunk{Content: f.reply[:2]}
	ch <- &provider.StreamChunk{Content: f.reply[2:]}
	close(ch)
	return ch, nil
}

type fakeRetriever struct {
	err error
}

func (r fakeRetriever) Query(context.Context, string, int) (*rag.Answer, error) {
	return nil, r.err
}

func newTestService(t *testing.T, retriever Retriever) (*Service, map[string]*fakeProvider) {
	t.Helper()
	fakes := map[string]*fakeProvider{
		"groq":   {desc: provider.Descriptor{ID: "groq", Name: "Groq", Models: []string{"llama"}, Strengths: []string{"fast"}}, available: true, reply: "from groq"},
		"claude": {desc: provider.Descriptor{ID: "claude", Name: "Claude", Models: []string{"haiku"}}, available: true, reply: "from claude"},
		"openai": {desc: provider.Descriptor{ID: "openai", Name: "OpenAI", Models: []string{"gpt"}}, available: false, reply: "unused"},
	}
	reg := provider.NewRegistry(zap.NewNop())
	for _, id := range []string{"groq", "claude", "openai"} {
		reg.Register(fakes[id])
	}
	r := router.New(router.NewClassifier(router.DefaultTaxonomy()), router.DefaultPriorities(), reg.Descriptors(), zap.NewNop())
	return New(reg, r, retriever, zap.NewNop()), fakes
}

func TestChat_Routes(t *testing.T) {
	svc, fakes := newTestService(t, nil)
	resp, err := svc.Chat(context.Background(), &ChatRequest{
		Message: "debug my function",
		History: []provider.Message{
			{Role: provider.RoleUser, Content: "hi"},
			{Role: provider.RoleAssistant, Content: "hello"},
			{Role: "tool", Content: "dropped"},
			{Role: provider.RoleUser, Content: ""},
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Provider != "groq" || resp.Model != "llama" || resp.Category != router.Coding {
		t.Errorf("response = %+v", resp)
	}
	if resp.Response != "from groq" || resp.TokensUsed == nil || *resp.TokensUsed != 5 {
		t.Errorf("response = %+v", resp)
	}
	if resp.RoutingExplanation != "Query classified as 'coding'. Routed to Groq (strengths: fast)" {
		t.Errorf("explanation = %q", resp.RoutingExplanation)
	}

	msgs := fakes["groq"].last.Messages
	if len(msgs) != 3 || msgs[2].Role != provider.RoleUser || msgs[2].Content != "debug my function" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestChat_Preferred(t *testing.T) {
	svc, _ := newTestService(t, nil)
	resp, err := svc.Chat(context.Background(), &ChatRequest{Message: "debug", PreferredProvider: "claude"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Provider != "claude" {
		t.Errorf("provider = %s", resp.Provider)
	}

	// unavailable preference falls back to routing
	resp, err = svc.Chat(context.Background(), &ChatRequest{Message: "debug", PreferredProvider: "openai"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Provider != "groq" {
		t.Errorf("provider = %s", resp.Provider)
	}
}

func TestChat_Errors(t *testing.T) {
	svc, fakes := newTestService(t, nil)
	if _, err := svc.Chat(context.Background(), &ChatRequest{Message: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}

	upstream := &provider.UpstreamError{Provider: "groq", Status: 500, Message: "boom"}
	fakes["groq"].err = upstream
	_, err := svc.Chat(context.Background(), &ChatRequest{Message: "debug"})
	var upErr *provider.UpstreamError
	if !errors.As(err, &upErr) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestChat_NoProviders(t *testing.T) {
	reg := provider.NewRegistry(zap.NewNop())
	r := router.New(router.NewClassifier(router.DefaultTaxonomy()), router.DefaultPriorities(), nil, zap.NewNop())
	svc := New(reg, r, nil, zap.NewNop())
	if _, err := svc.Chat(context.Background(), &ChatRequest{Message: "hello"}); !errors.Is(err, router.ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
}

func TestChat_UseContext(t *testing.T) {
	snap, err := vectorstore.NewFileSnapshot(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	idx, err := vectorstore.NewMemoryIndex(context.Background(), embedding.NewHashProvider(256), snap, zap.NewNop())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	engine := rag.NewEngine(idx, rag.DefaultConfig(), zap.NewNop())
	if _, err := engine.IngestSource(context.Background(), "Go channels pass values between goroutines", "go.md", "text"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	svc, fakes := newTestService(t, engine)
	req := &ChatRequest{
		Message:    "how do channels and goroutines work",
		History:    []provider.Message{{Role: provider.RoleUser, Content: "earlier"}},
		UseContext: true,
	}
	if _, err := svc.Chat(context.Background(), req); err != nil {
		t.Fatalf("chat: %v", err)
	}
	msgs := fakes["groq"].last.Messages
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != provider.RoleSystem || !strings.Contains(msgs[0].Content, "[go.md]") ||
		!strings.Contains(msgs[0].Content, "Go channels pass values") {
		t.Errorf("context message = %+v", msgs[0])
	}
	if msgs[1].Content != "earlier" || msgs[2].Content != req.Message {
		t.Errorf("messages = %+v", msgs)
	}

	// without the flag no retrieval happens
	req.UseContext = false
	if _, err := svc.Chat(context.Background(), req); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if n := len(fakes["groq"].last.Messages); n != 2 {
		t.Errorf("got %d messages", n)
	}
}

func TestChat_RetrievalFailure(t *testing.T) {
	svc, fakes := newTestService(t, fakeRetriever{err: errors.New("index down")})
	if _, err := svc.Chat(context.Background(), &ChatRequest{Message: "hello", UseContext: true}); err != nil {
		t.Fatalf("retrieval failure should not fail chat: %v", err)
	}
	if n := len(fakes["groq"].last.Messages); n != 1 {
		t.Errorf("got %d messages", n)
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages([]provider.Message{{Role: provider.RoleUser, Content: "earlier"}}, "ctx", "now")
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != provider.RoleSystem || msgs[0].Content != "ctx" {
		t.Errorf("first = %+v", msgs[0])
	}
	if msgs[2].Content != "now" {
		t.Errorf("last = %+v", msgs[2])
	}
}

func TestStream(t *testing.T) {
	svc, _ := newTestService(t, nil)
	sel, ch, err := svc.Stream(context.Background(), &ChatRequest{Message: "write a poem"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if sel.Provider != "groq" || sel.Category != router.Creative {
		t.Errorf("selection = %+v", sel)
	}
	text, err := provider.Collect(ch)
	if err != nil || text != "from groq" {
		t.Errorf("got %q, %v", text, err)
	}
}

func TestProviders(t *testing.T) {
	svc, _ := newTestService(t, nil)
	list := svc.Providers()
	if len(list) != 3 || list[0].ID != "groq" || list[2].Available {
		t.Errorf("providers = %+v", list)
	}
	if _, ok := svc.Provider("nope"); ok {
		t.Error("unexpected provider")
	}
	if p, ok := svc.Provider("claude"); !ok || p.Models[0] != "haiku" {
		t.Errorf("claude = %+v", p)
	}
	if got := svc.Available(); len(got) != 2 {
		t.Errorf("available = %v", got)
	}
}
