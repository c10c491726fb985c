package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TypeTag identifies the expected answer shape of a question.
type TypeTag string

const (
	// TypeAuto accepts whatever the user sends, validated against the
	// event's own inferred content type.
	TypeAuto TypeTag = "auto"
	// TypeText accepts a textual message body.
	TypeText TypeTag = "text"
	// TypeString is an alias of TypeText kept for definition authors.
	TypeString TypeTag = "string"
	// TypeCaption accepts a textual body, preferring the media caption.
	TypeCaption TypeTag = "caption"
	// TypeNumeric accepts a textual body that parses as a number.
	TypeNumeric TypeTag = "numeric"
	// TypeKeyboard accepts a callback button press; the answer is its payload.
	TypeKeyboard TypeTag = "keyboard"

	TypePhoto     TypeTag = "photo"
	TypeVideo     TypeTag = "video"
	TypeAudio     TypeTag = "audio"
	TypeVoice     TypeTag = "voice"
	TypeVideoNote TypeTag = "video_note"
	TypeDocument  TypeTag = "document"

	// TypeVenue accepts a venue; the answer is its address.
	TypeVenue TypeTag = "venue"
	// TypeContact accepts a contact; the answer is its phone number.
	TypeContact TypeTag = "contact"
)

var knownTags = map[TypeTag]struct{}{
	TypeAuto: {}, TypeText: {}, TypeString: {}, TypeCaption: {},
	TypeNumeric: {}, TypeKeyboard: {},
	TypePhoto: {}, TypeVideo: {}, TypeAudio: {}, TypeVoice: {},
	TypeVideoNote: {}, TypeDocument: {},
	TypeVenue: {}, TypeContact: {},
}

// Known reports whether the tag is a member of the closed tag set.
func (t TypeTag) Known() bool {
	_, ok := knownTags[t]
	return ok
}

// CancelReason explains why a dialogue ended without completing.
type CancelReason string

const (
	// CancelExpired means no answer arrived within the cancel timeout.
	CancelExpired CancelReason = "expired"
	// CancelCommand means the user sent the configured cancel command.
	CancelCommand CancelReason = "cancel_command"
	// CancelMaxAttempts means the user exhausted the allowed invalid answers.
	CancelMaxAttempts CancelReason = "max_attempts"
)

// Skipped is the sentinel answer value recorded when a user invokes a
// question's skip command instead of answering.
const Skipped = "__skipped__"

// Button is one pressable element of a prompt keyboard.
type Button struct {
	Text string
	Data string
}

// Keyboard describes an input keyboard attached to a prompt.
// Inline keyboards produce callback events; reply keyboards produce text.
type Keyboard struct {
	Inline bool
	Rows   [][]Button
}

// MediaRef points at an already-uploaded media object used as a prompt.
type MediaRef struct {
	Kind   MediaKind
	FileID string
}

// QuestionSpec is the immutable description of a single question.
// Expect lists accepted answer types tried in order; an empty list means
// auto-detection. ResultKey defaults to the question's zero-based index.
type QuestionSpec struct {
	Prompt      string
	Media       *MediaRef
	Expect      []TypeTag
	Keyboard    *Keyboard
	ResultKey   string
	SkipCommand string
}

// Handler receives lifecycle callbacks of a dialogue definition.
// OnComplete and OnCancel are terminal and invoked exactly once per run.
type Handler interface {
	OnStart(ctx context.Context) error
	OnComplete(ctx context.Context, answers map[string]string) error
	OnCancel(ctx context.Context, reason CancelReason) error
}

// Definition is an immutable, named sequence of questions plus the policy
// applied to one run of the dialogue.
type Definition struct {
	name             string
	questions        []QuestionSpec
	maxAttempts      int
	cancelTimeout    time.Duration
	cancelCommand    string
	forgetOnComplete bool
	handler          Handler
}

// Name returns the definition identifier.
func (d *Definition) Name() string { return d.name }

// Len returns the number of questions.
func (d *Definition) Len() int { return len(d.questions) }

// Question returns the question at the given step.
func (d *Definition) Question(step int) QuestionSpec { return d.questions[step] }

// MaxAttempts returns how many invalid answers cancel the dialogue.
func (d *Definition) MaxAttempts() int { return d.maxAttempts }

// CancelTimeout returns the per-question answer deadline.
func (d *Definition) CancelTimeout() time.Duration { return d.cancelTimeout }

// CancelCommand returns the command that aborts the dialogue.
func (d *Definition) CancelCommand() string { return d.cancelCommand }

// ForgetOnComplete reports whether state is deleted right after completion.
func (d *Definition) ForgetOnComplete() bool { return d.forgetOnComplete }

// Handler returns the lifecycle callback receiver.
func (d *Definition) Handler() Handler { return d.handler }

// Builder assembles one Definition. It is scoped to a single definition
// instance and must not be shared across dialogues.
type Builder struct {
	name             string
	handler          Handler
	questions        []QuestionSpec
	maxAttempts      int
	cancelTimeout    time.Duration
	cancelCommand    string
	forgetOnComplete bool
	errs             []error
}

// New starts building a definition with the given name and handler.
func New(name string, handler Handler) *Builder {
	b := &Builder{name: strings.TrimSpace(name), handler: handler}
	if b.name == "" {
		b.errs = append(b.errs, errors.New("definition name is empty"))
	}
	if handler == nil {
		b.errs = append(b.errs, errors.New("definition handler is nil"))
	}
	return b
}

// MaxAttempts overrides the invalid-answer budget for this definition.
func (b *Builder) MaxAttempts(n int) *Builder {
	if n <= 0 {
		b.errs = append(b.errs, fmt.Errorf("max attempts must be positive, got %d", n))
		return b
	}
	b.maxAttempts = n
	return b
}

// CancelTimeout overrides the per-question answer deadline.
func (b *Builder) CancelTimeout(d time.Duration) *Builder {
	if d <= 0 {
		b.errs = append(b.errs, fmt.Errorf("cancel timeout must be positive, got %s", d))
		return b
	}
	b.cancelTimeout = d
	return b
}

// CancelCommand overrides the command that aborts the dialogue.
func (b *Builder) CancelCommand(cmd string) *Builder {
	b.cancelCommand = cmd
	return b
}

// ForgetOnComplete removes stored state right after OnComplete returns.
func (b *Builder) ForgetOnComplete() *Builder {
	b.forgetOnComplete = true
	return b
}

// Ask appends a question and returns a QuestionBuilder narrowing it.
func (b *Builder) Ask(prompt string) *QuestionBuilder {
	if strings.TrimSpace(prompt) == "" {
		b.errs = append(b.errs, fmt.Errorf("question %d: empty prompt", len(b.questions)))
	}
	b.questions = append(b.questions, QuestionSpec{Prompt: prompt})
	return &QuestionBuilder{b: b, idx: len(b.questions) - 1}
}

// Build validates the accumulated definition and freezes it.
func (b *Builder) Build() (*Definition, error) {
	if len(b.questions) == 0 {
		b.errs = append(b.errs, errors.New("definition has no questions"))
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("dialogue %q: %w", b.name, errors.Join(b.errs...))
	}
	return &Definition{
		name:             b.name,
		questions:        append([]QuestionSpec(nil), b.questions...),
		maxAttempts:      b.maxAttempts,
		cancelTimeout:    b.cancelTimeout,
		cancelCommand:    b.cancelCommand,
		forgetOnComplete: b.forgetOnComplete,
		handler:          b.handler,
	}, nil
}

// QuestionBuilder narrows the most recently appended question.
type QuestionBuilder struct {
	b   *Builder
	idx int
}

func (q *QuestionBuilder) spec() *QuestionSpec { return &q.b.questions[q.idx] }

// Expect sets the accepted answer types, tried in declaration order.
func (q *QuestionBuilder) Expect(tags ...TypeTag) *QuestionBuilder {
	for _, tag := range tags {
		if !tag.Known() {
			q.b.errs = append(q.b.errs, fmt.Errorf("question %d: unknown type tag %q", q.idx, tag))
		}
	}
	q.spec().Expect = append([]TypeTag(nil), tags...)
	return q
}

// Media attaches a media prompt rendered instead of a plain text message.
func (q *QuestionBuilder) Media(kind MediaKind, fileID string) *QuestionBuilder {
	if !kind.known() {
		q.b.errs = append(q.b.errs, fmt.Errorf("question %d: unknown media kind %q", q.idx, kind))
	}
	if fileID == "" {
		q.b.errs = append(q.b.errs, fmt.Errorf("question %d: empty media file id", q.idx))
	}
	q.spec().Media = &MediaRef{Kind: kind, FileID: fileID}
	return q
}

// Keyboard attaches an input keyboard to the prompt.
func (q *QuestionBuilder) Keyboard(kb Keyboard) *QuestionBuilder {
	q.spec().Keyboard = &kb
	return q
}

// ResultKey names the answer slot; duplicates overwrite the same slot.
func (q *QuestionBuilder) ResultKey(key string) *QuestionBuilder {
	q.spec().ResultKey = key
	return q
}

// SkipCommand lets the user skip this question; the Skipped sentinel is
// recorded as its answer.
func (q *QuestionBuilder) SkipCommand(cmd string) *QuestionBuilder {
	q.spec().SkipCommand = cmd
	return q
}

// Ask appends the next question, continuing the chain.
func (q *QuestionBuilder) Ask(prompt string) *QuestionBuilder {
	return q.b.Ask(prompt)
}

// Build finishes the chain and freezes the definition.
func (q *QuestionBuilder) Build() (*Definition, error) {
	return q.b.Build()
}
