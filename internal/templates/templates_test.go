package templates

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEmbedded(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range []string{"coach", "studyfinder", "vision", "matcher"} {
		v, err := cat.Variant(key)
		if err != nil {
			t.Fatalf("variant %s: %v", key, err)
		}
		if got := v.LocaleCodes(); strings.Join(got, ",") != "de,en" {
			t.Fatalf("variant %s locales = %v", key, got)
		}
	}

	coach, _ := cat.Variant("coach")
	if coach.Kind != KindChat || coach.MaxMessages != 10 {
		t.Fatalf("unexpected coach config: %+v", coach)
	}
	de, err := coach.Locale("")
	if err != nil || de.Code != "de" {
		t.Fatalf("expected default locale de, got %v %v", de, err)
	}
	if len(de.Goals) != 3 {
		t.Fatalf("expected 3 coach goals, got %d", len(de.Goals))
	}

	matcher, _ := cat.Variant("matcher")
	if matcher.Kind != KindMatch || matcher.MaxRequests != 5 {
		t.Fatalf("unexpected matcher config: %+v", matcher)
	}
}

func TestOptionScalarAndMapping(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := cat.Variant("matcher")
	en, _ := v.Locale("EN")
	g, err := en.Goal("programs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var locations Question
	for _, q := range g.Questions {
		if q.Key == "locations" {
			locations = q
		}
	}
	if locations.Filter != FilterLocation {
		t.Fatalf("expected location filter, got %q", locations.Filter)
	}
	munich, ok := locations.Option("München")
	if !ok || munich.Label != "Munich" {
		t.Fatalf("expected mapped option, got %+v", munich)
	}
	berlin, ok := locations.Option("Berlin")
	if !ok || berlin.Label != "Berlin" {
		t.Fatalf("expected scalar option, got %+v", berlin)
	}
}

func TestLookupErrors(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cat.Variant("nope"); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
	v, _ := cat.Variant("coach")
	if _, err := v.Locale("fr"); !errors.Is(err, ErrUnknownLocale) {
		t.Fatalf("expected ErrUnknownLocale, got %v", err)
	}
	l, _ := v.Locale("de")
	if _, err := l.Goal("nope"); !errors.Is(err, ErrUnknownGoal) {
		t.Fatalf("expected ErrUnknownGoal, got %v", err)
	}
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"no variants": `variants: []`,
		"unknown kind": `
variants:
  - key: x
    kind: other
    default_locale: de
    locales: {de: {title: x}}`,
		"missing base prompt": `
variants:
  - key: x
    kind: chat
    max_messages: 3
    default_locale: de
    locales:
      de:
        seed_prompt: hi
        goals: [{key: g, questions: [{key: q, kind: text}]}]`,
		"choice without options": `
variants:
  - key: x
    kind: chat
    max_messages: 3
    default_locale: de
    locales:
      de:
        base_prompt: sys
        seed_prompt: hi
        goals: [{key: g, questions: [{key: q, kind: multi}]}]`,
		"default locale missing": `
variants:
  - key: x
    kind: chat
    max_messages: 3
    default_locale: en
    locales:
      de:
        base_prompt: sys
        seed_prompt: hi
        goals: [{key: g, questions: [{key: q, kind: text}]}]`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadFromPath(t *testing.T) {
	raw := `
variants:
  - key: mini
    kind: chat
    max_messages: 2
    default_locale: de
    locales:
      de:
        base_prompt: sys
        greeting: Hallo
        goals: [{key: g, questions: [{key: q, kind: text, required: true}]}]
`
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := cat.Variant("mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l, _ := v.Locale("de")
	if l.Greeting != "Hallo" {
		t.Fatalf("expected greeting, got %q", l.Greeting)
	}
}

func TestLocaleFollowUpRounds(t *testing.T) {
	l := &Locale{FollowUps: []string{"adjust", "careers"}}
	for round, want := range map[int]string{-1: "adjust", 0: "adjust", 1: "careers", 5: "careers"} {
		if got := l.FollowUp(round); got != want {
			t.Fatalf("FollowUp(%d)=%q want %q", round, got, want)
		}
	}
	if got := (&Locale{}).FollowUp(0); got != "" {
		t.Fatalf("expected no follow-up, got %q", got)
	}

	cat, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, _ := cat.Variant("studyfinder")
	de, _ := v.Locale("de")
	if len(de.FollowUps) != 2 || de.FollowUp(0) == de.FollowUp(1) {
		t.Fatalf("studyfinder should switch follow-up after the first round: %v", de.FollowUps)
	}
}
