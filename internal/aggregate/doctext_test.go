package aggregate

import (
	"strings"
	"testing"
)

func TestCleanText(t *testing.T) {
	t.Parallel()

	got := CleanText("  first   line \r\n\r\n second\tline \r trailing  ")
	want := "first line\n\nsecond line\n\ntrailing"
	if got != want {
		t.Fatalf("unexpected cleaned text:\ngot  %q\nwant %q", got, want)
	}
}

func TestCleanText_Empty(t *testing.T) {
	t.Parallel()

	if got := CleanText(" \n\t \r\n "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestPrepareText_PlainPassthrough(t *testing.T) {
	t.Parallel()

	got, err := PrepareText("Jeffrey  Epstein \n\n was seen", "text/plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Jeffrey Epstein\n\nwas seen" {
		t.Fatalf("unexpected prepared text: %q", got)
	}
}

func TestPrepareText_UnknownTypeTreatedAsPlain(t *testing.T) {
	t.Parallel()

	got, err := PrepareText("raw bytes here", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "raw bytes here" {
		t.Fatalf("unexpected prepared text: %q", got)
	}
}

func TestPrepareText_HTMLStripsMarkup(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Flight logs</title></head><body>
<article>
<p>The flight logs list several passengers travelling between the islands over the course of the decade.</p>
<p>Investigators reviewed the manifests and compared the names against earlier depositions and court filings.</p>
<p>Several of the entries were corroborated by witness statements collected during the original inquiry.</p>
</article>
</body></html>`

	got, err := PrepareText(html, "text/html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "<") {
		t.Fatalf("expected markup to be stripped, got %q", got)
	}
}

func TestDetectLanguage_English(t *testing.T) {
	t.Parallel()

	text := "The investigators reviewed the flight manifests and compared every name against the court records from the original inquiry."
	if got := DetectLanguage(text); got != "en" {
		t.Fatalf("expected English, got %q", got)
	}
}

func TestDetectLanguage_TooShort(t *testing.T) {
	t.Parallel()

	if got := DetectLanguage("a b"); got != "" {
		t.Fatalf("expected no call on short sample, got %q", got)
	}
}
