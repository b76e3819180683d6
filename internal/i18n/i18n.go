// Package i18n holds the bot's user-facing text. Messages are grouped by
// category and addressed as "category.key".
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Fallback is the language used when a message is missing in the
// learner's language.
const Fallback = "en"

//go:embed locales/*.yaml
var localeFS embed.FS

// Args are the named values substituted for {name} placeholders.
type Args map[string]any

// Bundle is a set of loaded catalogs. It is read-only after loading.
type Bundle struct {
	catalogs map[string]map[string]map[string]string
	log      *zap.Logger
}

// Load reads the built-in catalogs.
func Load(log *zap.Logger) (*Bundle, error) {
	return LoadFS(localeFS, "locales", log)
}

// MustLoad is Load for package-level wiring and tests.
func MustLoad() *Bundle {
	b, err := Load(nil)
	if err != nil {
		panic(err)
	}
	return b
}

// LoadFS reads every <lang>.yaml file under dir.
func LoadFS(fsys fs.FS, dir string, log *zap.Logger) (*Bundle, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	b := &Bundle{catalogs: make(map[string]map[string]map[string]string), log: log}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		lang := strings.TrimSuffix(e.Name(), ".yaml")
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var cat map[string]map[string]string
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		b.catalogs[lang] = cat
	}
	if _, ok := b.catalogs[Fallback]; !ok {
		return nil, fmt.Errorf("locales: %s catalog missing", Fallback)
	}
	return b, nil
}

// Languages returns the loaded language codes, sorted.
func (b *Bundle) Languages() []string {
	langs := make([]string, 0, len(b.catalogs))
	for l := range b.catalogs {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Detect maps a client language code such as "es-MX" to a supported
// language, or Fallback.
func (b *Bundle) Detect(code string) string {
	lang, _, _ := strings.Cut(strings.ToLower(code), "-")
	if _, ok := b.catalogs[lang]; ok {
		return lang
	}
	return Fallback
}

// T returns the message for key in lang, falling back to English. A key
// missing everywhere renders as a visible marker.
func (b *Bundle) T(lang, key string, args ...Args) string {
	tmpl, ok := b.lookup(lang, key)
	if !ok && lang != Fallback {
		tmpl, ok = b.lookup(Fallback, key)
	}
	if !ok {
		b.log.Error("missing translation", zap.String("key", key), zap.String("lang", lang))
		return "[missing: " + key + "]"
	}
	if len(args) == 0 {
		return tmpl
	}
	return format(tmpl, args[0])
}

func (b *Bundle) lookup(lang, key string) (string, bool) {
	category, name, ok := strings.Cut(key, ".")
	if !ok {
		return "", false
	}
	msg, ok := b.catalogs[lang][category][name]
	return msg, ok
}

func format(tmpl string, args Args) string {
	pairs := make([]string, 0, 2*len(args))
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
