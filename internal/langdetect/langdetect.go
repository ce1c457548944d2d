// Package langdetect names the natural language of a text sample.
package langdetect

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/pkg/logger"
)

// Unknown is reported whenever the language cannot be determined.
const Unknown = "unknown"

const (
	KindStatistical = "statistical"
	KindGenerative  = "generative"

	DefaultSampleChars = 1000
)

// Identifier returns an English language name such as "English" or
// "Spanish". It never fails: problems yield Unknown.
type Identifier interface {
	Identify(ctx context.Context, sample string) string
}

// Generator is the slice of the generation service the generative
// identifier needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Sample returns the first n characters of text.
func Sample(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}

// New returns the identifier named by kind. gen is only used by the
// generative identifier.
func New(kind string, gen Generator) (Identifier, error) {
	switch kind {
	case KindStatistical, "":
		return NewStatistical(), nil
	case KindGenerative:
		if gen == nil {
			return nil, fmt.Errorf("generative language detection needs a generator")
		}
		return NewGenerative(gen), nil
	default:
		return nil, fmt.Errorf("unknown language detector %q", kind)
	}
}

// Statistical classifies text with whatlanggo's trigram profiles.
type Statistical struct {
	// MinConfidence below which a result is reported as Unknown. Zero uses
	// whatlanggo's own reliability threshold.
	MinConfidence float64
}

func NewStatistical() *Statistical {
	return &Statistical{}
}

func (s *Statistical) Identify(_ context.Context, sample string) string {
	if strings.TrimSpace(sample) == "" {
		return Unknown
	}

	info := whatlanggo.Detect(sample)
	if info.Script == nil {
		return Unknown
	}
	reliable := info.IsReliable()
	if s.MinConfidence > 0 {
		reliable = info.Confidence >= s.MinConfidence
	}
	if !reliable {
		return Unknown
	}

	name := info.Lang.String()
	if name == "" {
		return Unknown
	}
	return name
}

// Generative asks the generation service to name the language.
type Generative struct {
	gen Generator
	log *zap.Logger
}

func NewGenerative(gen Generator) *Generative {
	return &Generative{gen: gen, log: logger.Named("langdetect")}
}

const maxLanguageNameLen = 40

func (g *Generative) Identify(ctx context.Context, sample string) string {
	if strings.TrimSpace(sample) == "" {
		return Unknown
	}

	prompt := `Detect the language of the following text. Reply with only the language name (e.g., "English", "Spanish", etc.):

` + sample

	reply, err := g.gen.Generate(ctx, prompt)
	if err != nil {
		g.log.Warn("Language detection failed", zap.Error(err))
		return Unknown
	}
	return cleanLanguageName(reply)
}

// cleanLanguageName keeps the first line of a reply and strips quoting and
// trailing punctuation.
func cleanLanguageName(reply string) string {
	line := strings.TrimSpace(reply)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.TrimFunc(line, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '`'
	})
	if line == "" || utf8.RuneCountInString(line) > maxLanguageNameLen {
		return Unknown
	}
	return line
}
