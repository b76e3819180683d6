package i18n

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoad_BuiltIn(t *testing.T) {
	b := MustLoad()
	langs := b.Languages()
	if len(langs) != 2 || langs[0] != "en" || langs[1] != "es" {
		t.Fatalf("languages = %v, want [en es]", langs)
	}
}

func TestT_Formats(t *testing.T) {
	b := MustLoad()
	got := b.T("en", "reading.complete", Args{"correct": 2, "total": 3, "percent": "66.7"})
	want := "Reading practice complete! You answered 2 of 3 correctly (66.7%)."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestT_Spanish(t *testing.T) {
	b := MustLoad()
	if got := b.T("es", "general.cancel_button"); got != "❌ Cancelar" {
		t.Errorf("got %q", got)
	}
}

func TestT_FallsBackToEnglish(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.yaml": {Data: []byte("greetings:\n  hello: \"Hello {name}\"\n  bye: \"Bye\"\n")},
		"loc/es.yaml": {Data: []byte("greetings:\n  hello: \"Hola {name}\"\n")},
	}
	b, err := LoadFS(fsys, "loc", nil)
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}
	if got := b.T("es", "greetings.hello", Args{"name": "Ana"}); got != "Hola Ana" {
		t.Errorf("es hello = %q", got)
	}
	if got := b.T("es", "greetings.bye"); got != "Bye" {
		t.Errorf("es bye should fall back, got %q", got)
	}
	if got := b.T("fr", "greetings.hello", Args{"name": "Luc"}); got != "Hello Luc" {
		t.Errorf("unknown language should fall back, got %q", got)
	}
}

func TestT_Missing(t *testing.T) {
	b := MustLoad()
	got := b.T("en", "greetings.non_existent_key")
	if !strings.Contains(got, "greetings.non_existent_key") {
		t.Errorf("missing key marker = %q", got)
	}
	if got := b.T("en", "nodot"); !strings.HasPrefix(got, "[missing") {
		t.Errorf("key without category = %q", got)
	}
}

func TestT_UnknownPlaceholderKept(t *testing.T) {
	b := MustLoad()
	got := b.T("en", "errors.no_material")
	if !strings.Contains(got, "{section}") {
		t.Errorf("placeholder without args should be left as is, got %q", got)
	}
}

func TestDetect(t *testing.T) {
	b := MustLoad()
	tests := map[string]string{
		"es":    "es",
		"es-MX": "es",
		"EN-us": "en",
		"fr":    "en",
		"":      "en",
	}
	for code, want := range tests {
		if got := b.Detect(code); got != want {
			t.Errorf("Detect(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestLoadFS_RequiresEnglish(t *testing.T) {
	fsys := fstest.MapFS{"loc/es.yaml": {Data: []byte("a:\n  b: c\n")}}
	if _, err := LoadFS(fsys, "loc", nil); err == nil {
		t.Fatal("expected error without en catalog")
	}
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	b := MustLoad()
	en, es := b.catalogs["en"], b.catalogs["es"]
	for cat, msgs := range en {
		for key := range msgs {
			if _, ok := es[cat][key]; !ok {
				t.Errorf("es missing %s.%s", cat, key)
			}
		}
	}
}
