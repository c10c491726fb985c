package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/godialog/core/store"
)

type sentMessage struct {
	chatID int64
	text   string
	media  *MediaRef
	kb     *Keyboard
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (s *recordingSender) SendText(_ context.Context, chatID int64, text string, kb *Keyboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text, kb: kb})
	return nil
}

func (s *recordingSender) SendMedia(_ context.Context, chatID int64, media MediaRef, caption string, kb *Keyboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: caption, media: &media, kb: kb})
	return nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.text
	}
	return out
}

type captureHandler struct {
	mu        sync.Mutex
	starts    int
	completed []map[string]string
	cancels   []CancelReason

	completeErr error
}

func (h *captureHandler) OnStart(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	return nil
}

func (h *captureHandler) OnComplete(_ context.Context, answers map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, answers)
	return h.completeErr
}

func (h *captureHandler) OnCancel(_ context.Context, reason CancelReason) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancels = append(h.cancels, reason)
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const (
	testUser int64 = 100
	testChat int64 = 200
)

func newTestEngine(t *testing.T, defs ...*Definition) (*Engine, *recordingSender, *fakeClock) {
	t.Helper()
	sender := &recordingSender{}
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	eng, err := NewEngine(Options{
		Store:                store.NewMemory(),
		Sender:               sender,
		DefaultMaxAttempts:   3,
		DefaultCancelTimeout: 5 * time.Minute,
		Clock:                clk.now,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	for _, def := range defs {
		if err := eng.Register(def); err != nil {
			t.Fatalf("register %q: %v", def.Name(), err)
		}
	}
	return eng, sender, clk
}

func surveyDefinition(t *testing.T, h Handler, forget bool) *Definition {
	t.Helper()
	b := New("survey", h)
	if forget {
		b.ForgetOnComplete()
	}
	def, err := b.
		Ask("What is your name?").Expect(TypeText).ResultKey("name").
		Ask("How old are you?").Expect(TypeNumeric).ResultKey("age").
		Build()
	if err != nil {
		t.Fatalf("build survey: %v", err)
	}
	return def
}

func textEvent(text string) Event {
	return Event{UserID: testUser, ChatID: testChat, Text: text}
}

func startSurvey(t *testing.T, eng *Engine) {
	t.Helper()
	ctx := context.Background()
	if err := eng.Start(ctx, "survey", testUser, testChat); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.HandleEvent(ctx, textEvent("/survey")); err != nil {
		t.Fatalf("first prompt event: %v", err)
	}
}

func TestEngineHappyPath(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, sender, _ := newTestEngine(t, surveyDefinition(t, h, false))

	startSurvey(t, eng)
	if h.starts != 1 {
		t.Fatalf("starts = %d, want 1", h.starts)
	}
	if got := sender.texts(); len(got) != 1 || got[0] != "What is your name?" {
		t.Fatalf("prompts after start = %v", got)
	}

	if err := eng.HandleEvent(ctx, textEvent("Alice")); err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	if got := sender.texts(); len(got) != 2 || got[1] != "How old are you?" {
		t.Fatalf("prompts after first answer = %v", got)
	}

	if err := eng.HandleEvent(ctx, textEvent("42")); err != nil {
		t.Fatalf("answer 2: %v", err)
	}
	if len(h.completed) != 1 {
		t.Fatalf("completions = %d, want 1", len(h.completed))
	}
	got := h.completed[0]
	if got["name"] != "Alice" || got["age"] != "42" {
		t.Fatalf("answers = %v", got)
	}

	// Without forget the answers stay readable after completion.
	answers, ok, err := eng.Answers(ctx, testUser)
	if err != nil || !ok {
		t.Fatalf("answers after complete: ok=%v err=%v", ok, err)
	}
	if answers["name"] != "Alice" {
		t.Fatalf("retained answers = %v", answers)
	}

	// Further events against a completed dialogue are inert.
	if err := eng.HandleEvent(ctx, textEvent("again")); err != nil {
		t.Fatalf("post-complete event: %v", err)
	}
	if len(h.completed) != 1 {
		t.Fatalf("completion fired twice")
	}
}

func TestEngineForgetOnComplete(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, _, _ := newTestEngine(t, surveyDefinition(t, h, true))

	startSurvey(t, eng)
	if err := eng.HandleEvent(ctx, textEvent("Bob")); err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	if err := eng.HandleEvent(ctx, textEvent("30")); err != nil {
		t.Fatalf("answer 2: %v", err)
	}
	if len(h.completed) != 1 {
		t.Fatalf("completions = %d, want 1", len(h.completed))
	}
	if _, ok, _ := eng.Answers(ctx, testUser); ok {
		t.Fatal("state must be forgotten after completion")
	}
	if active, _ := eng.Active(ctx, testUser); active {
		t.Fatal("user must not be active after forget")
	}
}

func TestEngineStartIdempotent(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, _, _ := newTestEngine(t, surveyDefinition(t, h, false))

	startSurvey(t, eng)
	if err := eng.HandleEvent(ctx, textEvent("Carol")); err != nil {
		t.Fatalf("answer 1: %v", err)
	}

	// A redelivered start must not reset progress or fire OnStart again.
	if err := eng.Start(ctx, "survey", testUser, testChat); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if h.starts != 1 {
		t.Fatalf("starts = %d, want 1", h.starts)
	}
	answers, ok, err := eng.Answers(ctx, testUser)
	if err != nil || !ok || answers["name"] != "Carol" {
		t.Fatalf("progress lost: ok=%v err=%v answers=%v", ok, err, answers)
	}
}

func TestEngineStartUnknownDefinition(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	err := eng.Start(context.Background(), "ghost", testUser, testChat)
	if !errors.Is(err, ErrUnknownDefinition) {
		t.Fatalf("err = %v, want ErrUnknownDefinition", err)
	}
}

func TestEngineInvalidAnswerReprompts(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, sender, _ := newTestEngine(t, surveyDefinition(t, h, false))

	startSurvey(t, eng)
	if err := eng.HandleEvent(ctx, textEvent("Dave")); err != nil {
		t.Fatalf("answer 1: %v", err)
	}

	// "abc" is not numeric: the question is asked again, progress kept.
	if err := eng.HandleEvent(ctx, textEvent("abc")); err != nil {
		t.Fatalf("invalid answer: %v", err)
	}
	got := sender.texts()
	if len(got) != 3 || got[2] != "How old are you?" {
		t.Fatalf("prompts = %v, want re-prompt of age question", got)
	}
	if len(h.cancels) != 0 {
		t.Fatalf("unexpected cancel: %v", h.cancels)
	}

	if err := eng.HandleEvent(ctx, textEvent("55")); err != nil {
		t.Fatalf("valid answer after invalid: %v", err)
	}
	if len(h.completed) != 1 || h.completed[0]["age"] != "55" {
		t.Fatalf("completed = %v", h.completed)
	}
}

func TestEngineMaxAttemptsCancels(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	def, err := New("survey", h).
		MaxAttempts(2).
		Ask("How old are you?").Expect(TypeNumeric).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	eng, _, _ := newTestEngine(t, def)

	startSurvey(t, eng)
	if err := eng.HandleEvent(ctx, textEvent("not a number")); err != nil {
		t.Fatalf("invalid 1: %v", err)
	}
	if len(h.cancels) != 0 {
		t.Fatal("cancelled too early")
	}
	if err := eng.HandleEvent(ctx, textEvent("still not")); err != nil {
		t.Fatalf("invalid 2: %v", err)
	}
	if len(h.cancels) != 1 || h.cancels[0] != CancelMaxAttempts {
		t.Fatalf("cancels = %v, want [max_attempts]", h.cancels)
	}
	if active, _ := eng.Active(ctx, testUser); active {
		t.Fatal("state must be removed after cancel")
	}
}

func TestEngineCancelCommand(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, _, _ := newTestEngine(t, surveyDefinition(t, h, false))

	startSurvey(t, eng)
	if err := eng.HandleEvent(ctx, textEvent("/Cancel@SomeBot")); err != nil {
		t.Fatalf("cancel command: %v", err)
	}
	if len(h.cancels) != 1 || h.cancels[0] != CancelCommand {
		t.Fatalf("cancels = %v, want [cancel_command]", h.cancels)
	}
	if len(h.completed) != 0 {
		t.Fatal("cancel must not complete")
	}
	if active, _ := eng.Active(ctx, testUser); active {
		t.Fatal("state must be removed after cancel")
	}
}

func TestEngineTimeoutCancelsLazily(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, _, clk := newTestEngine(t, surveyDefinition(t, h, false))

	startSurvey(t, eng)
	clk.advance(6 * time.Minute)

	// The late answer triggers expiry instead of being consumed.
	if err := eng.HandleEvent(ctx, textEvent("Eve")); err != nil {
		t.Fatalf("late event: %v", err)
	}
	if len(h.cancels) != 1 || h.cancels[0] != CancelExpired {
		t.Fatalf("cancels = %v, want [expired]", h.cancels)
	}
	if _, ok, _ := eng.Answers(ctx, testUser); ok {
		t.Fatal("state must be removed after expiry")
	}
}

func TestEngineAnswerResetsDeadline(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, _, clk := newTestEngine(t, surveyDefinition(t, h, false))

	startSurvey(t, eng)
	clk.advance(4 * time.Minute)
	if err := eng.HandleEvent(ctx, textEvent("Frank")); err != nil {
		t.Fatalf("answer 1: %v", err)
	}

	// The deadline restarts per question, so 4 more minutes are fine.
	clk.advance(4 * time.Minute)
	if err := eng.HandleEvent(ctx, textEvent("61")); err != nil {
		t.Fatalf("answer 2: %v", err)
	}
	if len(h.completed) != 1 {
		t.Fatalf("completions = %d, want 1", len(h.completed))
	}
	if len(h.cancels) != 0 {
		t.Fatalf("unexpected cancels: %v", h.cancels)
	}
}

func TestEngineSkipCommand(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	def, err := New("survey", h).
		Ask("Name?").Expect(TypeText).ResultKey("name").
		Ask("Photo?").Expect(TypePhoto).ResultKey("photo").SkipCommand("/skip").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	eng, _, _ := newTestEngine(t, def)

	startSurvey(t, eng)
	if err := eng.HandleEvent(ctx, textEvent("Grace")); err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	if err := eng.HandleEvent(ctx, textEvent("/skip")); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if len(h.completed) != 1 {
		t.Fatalf("completions = %d, want 1", len(h.completed))
	}
	if got := h.completed[0]["photo"]; got != Skipped {
		t.Fatalf("photo answer = %q, want Skipped sentinel", got)
	}
}

func TestEngineEventWithoutDialogueIgnored(t *testing.T) {
	h := &captureHandler{}
	eng, sender, _ := newTestEngine(t, surveyDefinition(t, h, false))

	if err := eng.HandleEvent(context.Background(), textEvent("hello")); err != nil {
		t.Fatalf("stray event: %v", err)
	}
	if len(sender.texts()) != 0 {
		t.Fatal("stray event must not produce output")
	}
}

func TestEngineChatScopeIsolation(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, _, _ := newTestEngine(t, surveyDefinition(t, h, false))

	startSurvey(t, eng)
	other := Event{UserID: testUser, ChatID: testChat + 1, Text: "Heidi"}
	if err := eng.HandleEvent(ctx, other); err != nil {
		t.Fatalf("foreign-chat event: %v", err)
	}

	// The answer from another chat must not advance the dialogue.
	if err := eng.HandleEvent(ctx, textEvent("Ivan")); err != nil {
		t.Fatalf("in-chat answer: %v", err)
	}
	answers, ok, err := eng.Answers(ctx, testUser)
	if err != nil || !ok || answers["name"] != "Ivan" {
		t.Fatalf("answers = %v (ok=%v err=%v), want name=Ivan", answers, ok, err)
	}
}

func TestEngineDiscardsCorruptState(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	sender := &recordingSender{}
	st := store.NewMemory()
	eng, err := NewEngine(Options{Store: st, Sender: sender})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Register(surveyDefinition(t, h, false)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := st.Set(ctx, stateKey(testUser), []byte("{broken"), 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := eng.HandleEvent(ctx, textEvent("hello")); err != nil {
		t.Fatalf("event over corrupt state: %v", err)
	}
	if ok, _ := st.Has(ctx, stateKey(testUser)); ok {
		t.Fatal("corrupt record must be deleted")
	}
	if len(h.cancels)+len(h.completed) != 0 {
		t.Fatal("corrupt record must not trigger callbacks")
	}
}

func TestEngineKeyboardQuestion(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	kb := Keyboard{Inline: true, Rows: [][]Button{{{Text: "Small", Data: "size:s"}, {Text: "Large", Data: "size:l"}}}}
	def, err := New("survey", h).
		Ask("Pick a size").Expect(TypeKeyboard).Keyboard(kb).ResultKey("size").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	eng, sender, _ := newTestEngine(t, def)

	startSurvey(t, eng)
	if sender.sent[0].kb == nil || !sender.sent[0].kb.Inline {
		t.Fatalf("prompt keyboard missing: %+v", sender.sent[0])
	}

	// Typed text must not satisfy a keyboard question.
	if err := eng.HandleEvent(ctx, textEvent("size:s")); err != nil {
		t.Fatalf("typed answer: %v", err)
	}
	if len(h.completed) != 0 {
		t.Fatal("typed text accepted for keyboard question")
	}

	press := Event{UserID: testUser, ChatID: testChat, Callback: &Callback{Payload: "size:l"}}
	if err := eng.HandleEvent(ctx, press); err != nil {
		t.Fatalf("callback answer: %v", err)
	}
	if len(h.completed) != 1 || h.completed[0]["size"] != "size:l" {
		t.Fatalf("completed = %v", h.completed)
	}
}

func TestEngineSenderFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	h := &captureHandler{}
	eng, sender, _ := newTestEngine(t, surveyDefinition(t, h, false))

	startSurvey(t, eng)
	sender.fail = errors.New("network down")
	if err := eng.HandleEvent(ctx, textEvent("Judy")); err == nil {
		t.Fatal("send failure must surface")
	}

	// The transition was not persisted, so the retried delivery lands on
	// the same question and succeeds.
	sender.fail = nil
	if err := eng.HandleEvent(ctx, textEvent("Judy")); err != nil {
		t.Fatalf("retried answer: %v", err)
	}
	answers, ok, _ := eng.Answers(ctx, testUser)
	if !ok || answers["name"] != "Judy" {
		t.Fatalf("answers = %v, want name=Judy", answers)
	}
}

func TestEngineDuplicateRegister(t *testing.T) {
	eng, _, _ := newTestEngine(t, surveyDefinition(t, &captureHandler{}, false))
	if err := eng.Register(surveyDefinition(t, &captureHandler{}, false)); err == nil {
		t.Fatal("duplicate register must fail")
	}
}
