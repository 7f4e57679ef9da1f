package aggregate

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode"

	readability "codeberg.org/readeck/go-readability/v2"
	lingua "github.com/pemistahl/lingua-go"
)

// PrepareText reduces stored document content to scannable plain text.
// HTML documents go through readability extraction first so markup and
// boilerplate never produce phantom mentions; everything else is only
// whitespace-normalized.
func PrepareText(content, contentType string) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(kind, "text/html") && !strings.HasPrefix(kind, "application/xhtml") {
		return CleanText(content), nil
	}

	baseURL, err := url.Parse("file:///document")
	if err != nil {
		return "", fmt.Errorf("parse document base url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader([]byte(content)), baseURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}

	text := CleanText(rendered.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	return text, nil
}

// CleanText normalizes line endings, collapses in-line whitespace, and drops
// blank lines.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// DetectLanguage returns the ISO 639-1 code of the dominant language in text,
// or "" when the sample is too short to call.
func DetectLanguage(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
