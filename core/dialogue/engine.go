package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/godialog/core/logger"
	"github.com/m3rciful/godialog/core/store"
)

// ErrUnknownDefinition is returned by Start when no definition with the
// requested name has been registered.
var ErrUnknownDefinition = errors.New("unknown dialogue definition")

// Sender renders outbound prompts. Implementations wrap a concrete
// transport such as a Telegram bot client.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) error
	SendMedia(ctx context.Context, chatID int64, media MediaRef, caption string, kb *Keyboard) error
}

// Options configures an Engine. Store and Sender are mandatory; the
// remaining fields fall back to engine-level defaults.
type Options struct {
	Store  store.Store
	Sender Sender

	// Defaults applied to definitions that do not set their own policy.
	DefaultMaxAttempts   int
	DefaultCancelTimeout time.Duration
	DefaultCancelCommand string

	// StateTTL caps the store-level lifetime of persisted state records.
	// Zero disables store expiry; lazy timeout handling still applies.
	StateTTL time.Duration

	// Clock overrides time.Now, used by tests.
	Clock func() time.Time
}

// Engine drives registered dialogue definitions over an at-least-once
// event stream. All per-user progress lives in the store, so a single
// engine instance is safe to recreate on every process start.
type Engine struct {
	store  store.Store
	sender Sender

	mu   sync.RWMutex
	defs map[string]*Definition

	keys *keyedMutex

	defaultMaxAttempts   int
	defaultCancelTimeout time.Duration
	defaultCancelCommand string
	stateTTL             time.Duration
	now                  func() time.Time
}

// NewEngine builds an engine from options, applying defaults for any
// policy field left unset.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("dialogue engine: store is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("dialogue engine: sender is required")
	}
	e := &Engine{
		store:                opts.Store,
		sender:               opts.Sender,
		defs:                 map[string]*Definition{},
		keys:                 newKeyedMutex(),
		defaultMaxAttempts:   opts.DefaultMaxAttempts,
		defaultCancelTimeout: opts.DefaultCancelTimeout,
		defaultCancelCommand: opts.DefaultCancelCommand,
		stateTTL:             opts.StateTTL,
		now:                  opts.Clock,
	}
	if e.defaultMaxAttempts <= 0 {
		e.defaultMaxAttempts = 3
	}
	if e.defaultCancelTimeout < 0 {
		e.defaultCancelTimeout = 0
	}
	if e.defaultCancelCommand == "" {
		e.defaultCancelCommand = "/cancel"
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Register adds a definition under its name. Policy fields the definition
// leaves unset inherit the engine defaults. Duplicate names are rejected.
func (e *Engine) Register(def *Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.defs[def.name]; ok {
		return fmt.Errorf("dialogue %q already registered", def.name)
	}
	bound := *def
	if bound.maxAttempts <= 0 {
		bound.maxAttempts = e.defaultMaxAttempts
	}
	if bound.cancelTimeout == 0 {
		bound.cancelTimeout = e.defaultCancelTimeout
	}
	if bound.cancelCommand == "" {
		bound.cancelCommand = e.defaultCancelCommand
	}
	e.defs[def.name] = &bound
	return nil
}

// Definition returns the registered definition with the given name.
func (e *Engine) Definition(name string) (*Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[name]
	return def, ok
}

func stateKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Start begins the named dialogue for a user. It is idempotent: when a
// dialogue is already in flight for the user the call is a no-op, so a
// redelivered start event cannot reset progress. The first prompt is
// rendered by the follow-up HandleEvent call for the triggering event.
func (e *Engine) Start(ctx context.Context, name string, userID, chatID int64) error {
	unlock := e.keys.lock(userID)
	defer unlock()

	key := stateKey(userID)
	if ok, err := e.store.Has(ctx, key); err != nil {
		return fmt.Errorf("check dialogue state: %w", err)
	} else if ok {
		logger.Debug(ctx, "dialogue", "start.exists", slog.String("dialogue", name))
		return nil
	}

	def, ok := e.Definition(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDefinition, name)
	}
	if err := def.handler.OnStart(ctx); err != nil {
		return fmt.Errorf("dialogue %q on start: %w", name, err)
	}

	st := &State{
		Version:              stateVersion,
		Name:                 name,
		UserID:               userID,
		ChatID:               chatID,
		MaxAttempts:          def.maxAttempts,
		CancelTimeoutSeconds: int(def.cancelTimeout / time.Second),
		CancelCommand:        def.cancelCommand,
		Answers:              map[string]string{},
		StartedAt:            e.now().Unix(),
		ForgetOnComplete:     def.forgetOnComplete,
	}
	if err := e.persist(ctx, key, st); err != nil {
		return err
	}
	logger.Info(ctx, "dialogue", "start",
		slog.String("dialogue", name),
		slog.Int("questions", def.Len()),
	)
	return nil
}

// HandleEvent feeds one inbound event into the user's active dialogue.
// Events for users with no active dialogue are ignored. The caller is
// expected to deliver events at least once; duplicate deliveries after a
// state transition has been persisted are absorbed harmlessly.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) error {
	unlock := e.keys.lock(ev.UserID)
	defer unlock()

	key := stateKey(ev.UserID)
	data, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load dialogue state: %w", err)
	}
	if !ok {
		return nil
	}

	st, err := decodeState(data)
	if err != nil {
		return e.discard(ctx, key, "state.corrupt", err)
	}
	def, ok := e.Definition(st.Name)
	if !ok {
		return e.discard(ctx, key, "state.orphan", fmt.Errorf("%w: %q", ErrUnknownDefinition, st.Name))
	}
	if st.Step > def.Len() || (st.Step == def.Len() && !st.Complete) {
		return e.discard(ctx, key, "state.corrupt", fmt.Errorf("%w: step %d of %d", ErrCorruptState, st.Step, def.Len()))
	}

	if st.UserID != ev.UserID || (st.ChatID != 0 && ev.ChatID != 0 && st.ChatID != ev.ChatID) {
		return nil
	}
	if st.Complete {
		return nil
	}

	now := e.now()
	if st.expired(now) {
		return e.cancel(ctx, key, st, def, CancelExpired)
	}
	if cmd := ev.Command(); cmd != "" && cmd == NormalizeCommand(st.CancelCommand) {
		return e.cancel(ctx, key, st, def, CancelCommand)
	}

	// A freshly started dialogue has no pending question yet. The first
	// event after Start renders the opening prompt and arms the wait.
	if !st.WaitingForAnswer {
		return e.prompt(ctx, key, st, def, now)
	}

	q := def.Question(st.Step)
	if q.SkipCommand != "" && ev.Command() == NormalizeCommand(q.SkipCommand) {
		return e.advance(ctx, key, st, def, Skipped, now)
	}
	if value, valid := ValidateAny(q.Expect, ev); valid {
		return e.advance(ctx, key, st, def, value, now)
	}

	st.TotalAttempts++
	if st.TotalAttempts >= st.MaxAttempts {
		return e.cancel(ctx, key, st, def, CancelMaxAttempts)
	}
	logger.Debug(ctx, "dialogue", "answer.invalid",
		slog.String("dialogue", st.Name),
		slog.Int("step", st.Step),
		slog.Int("attempts", st.TotalAttempts),
	)
	if err := e.render(ctx, st, q); err != nil {
		return err
	}
	st.StartedAt = now.Unix()
	return e.persist(ctx, key, st)
}

// Answers returns a copy of the user's current answers map, or ok=false
// when the user has no stored dialogue state.
func (e *Engine) Answers(ctx context.Context, userID int64) (map[string]string, bool, error) {
	unlock := e.keys.lock(userID)
	defer unlock()

	key := stateKey(userID)
	data, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("load dialogue state: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	st, err := decodeState(data)
	if err != nil {
		return nil, false, e.discard(ctx, key, "state.corrupt", err)
	}
	out := make(map[string]string, len(st.Answers))
	for k, v := range st.Answers {
		out[k] = v
	}
	return out, true, nil
}

// Answer returns a single answer by result key.
func (e *Engine) Answer(ctx context.Context, userID int64, key string) (string, bool, error) {
	answers, ok, err := e.Answers(ctx, userID)
	if err != nil || !ok {
		return "", false, err
	}
	value, ok := answers[key]
	return value, ok, nil
}

// Active reports whether the user has any stored dialogue state.
func (e *Engine) Active(ctx context.Context, userID int64) (bool, error) {
	ok, err := e.store.Has(ctx, stateKey(userID))
	if err != nil {
		return false, fmt.Errorf("check dialogue state: %w", err)
	}
	return ok, nil
}

// prompt renders the current question and arms the waiting flag.
func (e *Engine) prompt(ctx context.Context, key string, st *State, def *Definition, now time.Time) error {
	q := def.Question(st.Step)
	if err := e.render(ctx, st, q); err != nil {
		return err
	}
	st.WaitingForAnswer = true
	st.StartedAt = now.Unix()
	if err := e.persist(ctx, key, st); err != nil {
		return err
	}
	logger.Debug(ctx, "dialogue", "prompt",
		slog.String("dialogue", st.Name),
		slog.Int("step", st.Step),
	)
	return nil
}

// advance records the answer for the current question and either renders
// the next prompt or completes the dialogue.
func (e *Engine) advance(ctx context.Context, key string, st *State, def *Definition, value string, now time.Time) error {
	q := def.Question(st.Step)
	resultKey := q.ResultKey
	if resultKey == "" {
		resultKey = strconv.Itoa(st.Step)
	}
	st.Answers[resultKey] = value
	st.Step++
	st.StartedAt = now.Unix()

	if st.Step < def.Len() {
		next := def.Question(st.Step)
		if err := e.render(ctx, st, next); err != nil {
			return err
		}
		if err := e.persist(ctx, key, st); err != nil {
			return err
		}
		logger.Debug(ctx, "dialogue", "answer.accepted",
			slog.String("dialogue", st.Name),
			slog.Int("step", st.Step-1),
			slog.String("result_key", resultKey),
		)
		return nil
	}

	// Final answer accepted. The completed record is persisted before the
	// callback fires, so a redelivered event cannot complete twice.
	st.Complete = true
	st.WaitingForAnswer = false
	if err := e.persist(ctx, key, st); err != nil {
		return err
	}
	answers := make(map[string]string, len(st.Answers))
	for k, v := range st.Answers {
		answers[k] = v
	}
	cbErr := def.handler.OnComplete(ctx, answers)
	logger.Info(ctx, "dialogue", "complete",
		slog.String("dialogue", st.Name),
		slog.Int("answers", len(answers)),
		slog.String("status", logger.Status(cbErr)),
	)
	if st.ForgetOnComplete {
		if err := e.store.Delete(ctx, key); err != nil {
			return errors.Join(cbErr, fmt.Errorf("delete dialogue state: %w", err))
		}
	}
	return cbErr
}

// cancel ends the dialogue without completing it. The OnCancel callback
// fires before the state record is removed.
func (e *Engine) cancel(ctx context.Context, key string, st *State, def *Definition, reason CancelReason) error {
	cbErr := def.handler.OnCancel(ctx, reason)
	logger.Info(ctx, "dialogue", "cancel",
		slog.String("dialogue", st.Name),
		slog.String("reason", string(reason)),
		slog.Int("step", st.Step),
		slog.String("status", logger.Status(cbErr)),
	)
	if err := e.store.Delete(ctx, key); err != nil {
		return errors.Join(cbErr, fmt.Errorf("delete dialogue state: %w", err))
	}
	return cbErr
}

// discard drops an unusable state record and reports the event as handled.
func (e *Engine) discard(ctx context.Context, key, event string, cause error) error {
	logger.Warn(ctx, "dialogue", event, slog.String("err", cause.Error()))
	if err := e.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete dialogue state: %w", err)
	}
	return nil
}

func (e *Engine) render(ctx context.Context, st *State, q QuestionSpec) error {
	if q.Media != nil {
		if err := e.sender.SendMedia(ctx, st.ChatID, *q.Media, q.Prompt, q.Keyboard); err != nil {
			return fmt.Errorf("send media prompt: %w", err)
		}
		return nil
	}
	if err := e.sender.SendText(ctx, st.ChatID, q.Prompt, q.Keyboard); err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, key string, st *State) error {
	data, err := encodeState(st)
	if err != nil {
		return err
	}
	if err := e.store.Set(ctx, key, data, e.stateTTL); err != nil {
		return fmt.Errorf("persist dialogue state: %w", err)
	}
	return nil
}
