package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var jsonUnmarshal = json.Unmarshal

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var bundle *i18n.Bundle

// Init loads the translation bundle for the given language tag.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle = i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", jsonUnmarshal)

	// Load all locale files from embedded FS.
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		mf, err := bundle.ParseMessageFileBytes(data, e.Name())
		if err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		if missing := missingMessages(mf); len(missing) > 0 {
			return fmt.Errorf("locale file %s is missing messages %v", e.Name(), missing)
		}
		slog.Info("loaded locale file", "file", e.Name(), "messages", len(mf.Messages))
	}

	return nil
}

func missingMessages(mf *i18n.MessageFile) []MessageID {
	have := make(map[string]bool, len(mf.Messages))
	for _, m := range mf.Messages {
		have[m.ID] = true
	}
	var missing []MessageID
	for _, id := range catalog {
		if !have[string(id)] {
			missing = append(missing, id)
		}
	}
	return missing
}

// NewLocalizer creates a localizer for the given languages, in order of preference.
func NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, langs...)
}

// Supported returns the language tags the bundle has messages for.
func Supported() []language.Tag {
	if bundle == nil {
		return nil
	}
	return bundle.LanguageTags()
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

// localizerFromCtx retrieves the localizer from context.
func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	// Fallback: return English localizer.
	return i18n.NewLocalizer(bundle, "en")
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	if bundle == nil {
		return cfg.MessageID
	}
	s, err := localizerFromCtx(ctx).Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID MessageID) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: string(msgID)})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID MessageID, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    string(msgID),
		TemplateData: data,
	})
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID MessageID, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    string(msgID),
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}
