package dialogue

import (
	"context"
	"strings"
	"testing"
	"time"
)

type nopHandler struct{}

func (nopHandler) OnStart(context.Context) error                      { return nil }
func (nopHandler) OnComplete(context.Context, map[string]string) error { return nil }
func (nopHandler) OnCancel(context.Context, CancelReason) error        { return nil }

func TestBuilderChain(t *testing.T) {
	def, err := New("order", nopHandler{}).
		MaxAttempts(5).
		CancelTimeout(10 * time.Minute).
		CancelCommand("/abort").
		ForgetOnComplete().
		Ask("What would you like?").Expect(TypeText).ResultKey("item").
		Ask("How many?").Expect(TypeNumeric).ResultKey("count").SkipCommand("/skip").
		Ask("Attach a photo of the damage").Expect(TypePhoto, TypeDocument).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if def.Name() != "order" || def.Len() != 3 {
		t.Fatalf("definition = %q/%d, want order/3", def.Name(), def.Len())
	}
	if def.MaxAttempts() != 5 || def.CancelTimeout() != 10*time.Minute || def.CancelCommand() != "/abort" {
		t.Fatalf("policy mismatch: %+v", def)
	}
	if !def.ForgetOnComplete() {
		t.Fatal("forget flag lost")
	}

	q := def.Question(1)
	if q.ResultKey != "count" || q.SkipCommand != "/skip" || len(q.Expect) != 1 || q.Expect[0] != TypeNumeric {
		t.Fatalf("question 1 mismatch: %+v", q)
	}
	if got := def.Question(2).Expect; len(got) != 2 || got[0] != TypePhoto || got[1] != TypeDocument {
		t.Fatalf("question 2 expect = %v", got)
	}
}

func TestBuilderValidation(t *testing.T) {
	cases := []struct {
		name    string
		build   func() (*Definition, error)
		wantErr string
	}{
		{
			"empty name",
			func() (*Definition, error) { return New(" ", nopHandler{}).Ask("q").Build() },
			"name is empty",
		},
		{
			"nil handler",
			func() (*Definition, error) { return New("d", nil).Ask("q").Build() },
			"handler is nil",
		},
		{
			"no questions",
			func() (*Definition, error) { return New("d", nopHandler{}).Build() },
			"no questions",
		},
		{
			"empty prompt",
			func() (*Definition, error) { return New("d", nopHandler{}).Ask("  ").Build() },
			"empty prompt",
		},
		{
			"unknown tag",
			func() (*Definition, error) {
				return New("d", nopHandler{}).Ask("q").Expect(TypeTag("gif")).Build()
			},
			`unknown type tag "gif"`,
		},
		{
			"bad max attempts",
			func() (*Definition, error) { return New("d", nopHandler{}).MaxAttempts(0).Ask("q").Build() },
			"max attempts",
		},
		{
			"bad media",
			func() (*Definition, error) {
				return New("d", nopHandler{}).Ask("q").Media(MediaKind("sticker"), "f").Build()
			},
			"unknown media kind",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.build(); err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestBuilderFreezesQuestions(t *testing.T) {
	b := New("d", nopHandler{})
	qb := b.Ask("first")
	def, err := qb.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// Mutating the builder after Build must not leak into the definition.
	qb.ResultKey("late")
	if def.Question(0).ResultKey != "" {
		t.Fatal("definition shares question storage with the builder")
	}
}
