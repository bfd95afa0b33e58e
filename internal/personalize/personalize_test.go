package personalize

import (
	"strings"
	"testing"
)

func TestRenderSubstitutesAllTokens(t *testing.T) {
	template := "Hi [Recipient Name] ([Name]), first [First Name], last [Last Name], " +
		"email [Email], company [Company], phone [Phone], tags [Tags]."
	r := Recipient{
		Email:       "jane.roe@example.com",
		DisplayName: "Jane Roe",
		Company:     "Acme Corp",
		Phone:       "+1-555-0100",
		Tags:        []string{"vip", "beta"},
	}

	got := Render(template, r)

	if strings.Contains(got, "[") {
		t.Errorf("recognized tokens remain in output: %q", got)
	}
	for _, want := range []string{"Jane Roe", "Jane", "Roe", "jane.roe@example.com", "Acme Corp", "+1-555-0100", "vip, beta"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
}

func TestRenderPreservesUnrecognizedTokens(t *testing.T) {
	got := Render("Hello [Name], your code is [Unknown Token].", Recipient{DisplayName: "Jane"})
	if !strings.Contains(got, "[Unknown Token]") {
		t.Errorf("unrecognized token was altered: %q", got)
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	template := "Dear [First Name] from [Company], see [Tags]."
	r := Recipient{Email: "a@b.com", DisplayName: "Ann Lee", Company: "Co", Tags: []string{"x"}}

	first := Render(template, r)
	second := Render(template, r)
	if first != second {
		t.Errorf("render not deterministic:\n%q\n%q", first, second)
	}
}

func TestRenderAbsentContactFieldsRenderEmpty(t *testing.T) {
	got := Render("c=[Company] p=[Phone] t=[Tags]", Recipient{Email: "a@b.com", DisplayName: "Ann"})
	if got != "c= p= t=" {
		t.Errorf("absent fields should render empty, got %q", got)
	}
}

func TestRenderSingleWordName(t *testing.T) {
	got := Render("[First Name]|[Last Name]", Recipient{DisplayName: "Cher"})
	if got != "Cher|" {
		t.Errorf("got %q, want %q", got, "Cher|")
	}
}

func TestTextFallback(t *testing.T) {
	html := `<html><body><h1>Hello Jane</h1><p>Welcome to <b>Acme</b> &amp; co.</p>` +
		`<p>Visit <a href="https://example.com">our site</a> today.</p></body></html>`

	got := TextFallback(html)

	if strings.Contains(got, "<") || strings.Contains(got, ">") {
		t.Errorf("markup remains: %q", got)
	}
	for _, want := range []string{"Hello Jane", "Welcome to Acme & co.", "Visit our site today."} {
		if !strings.Contains(got, want) {
			t.Errorf("fallback missing %q: %q", want, got)
		}
	}
}

func TestTextFallbackCollapsesBlankLines(t *testing.T) {
	got := TextFallback("<p>a</p><p></p><p></p><p>b</p>")
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("more than one blank line in a row: %q", got)
	}
}
