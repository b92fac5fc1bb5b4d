package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseSuccess(t *testing.T) {
	body := []byte(`{"results": "hello", "info": {"duration": 3}}`)
	panel := Parse(200, body)

	if panel.IsError() {
		t.Fatalf("unexpected error panel: %s", panel.Error)
	}
	if len(panel.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(panel.Sections))
	}

	results := panel.Sections[0]
	if results.Title != "results" || !results.Expanded {
		t.Fatalf("unexpected results section %+v", results)
	}
	if !results.Content.IsLeaf() || results.Content.Text != "hello" {
		t.Fatalf("expected leaf hello, got %+v", results.Content)
	}

	info := panel.Sections[1]
	if info.Title != "info" || !info.Expanded {
		t.Fatalf("unexpected info section %+v", info)
	}
	if !info.Content.IsGroup() || len(info.Content.Items) != 1 || info.Content.Items[0].String() != "duration: 3" {
		t.Fatalf("expected group duration: 3, got %+v", info.Content)
	}

	raw := panel.Sections[2]
	if raw.Title != RawTitle || raw.Expanded {
		t.Fatalf("unexpected raw section %+v", raw)
	}
	if raw.Content.Text != string(body) {
		t.Fatalf("raw section should hold the literal body, got %q", raw.Content.Text)
	}
}

func TestParseServerError(t *testing.T) {
	panel := Parse(500, []byte(`{"error": "decode failed"}`))
	if !panel.IsError() || panel.Error != "decode failed" {
		t.Fatalf("expected error panel with decode failed, got %+v", panel)
	}
	if len(panel.Sections) != 0 {
		t.Fatalf("error panel must have no sections, got %d", len(panel.Sections))
	}
}

func TestParseServerErrorFallsBackToStatusText(t *testing.T) {
	panel := Parse(502, []byte(`<html>bad gateway</html>`))
	if panel.Error != "Bad Gateway" {
		t.Fatalf("expected status text, got %q", panel.Error)
	}
}

func TestParsePreservesKeyOrderAndCollapse(t *testing.T) {
	panel := Parse(200, []byte(`{"zeta": "z", "segments": [{"start": 0, "text": "ciao"}], "info": {"language": "it"}, "elapsed": 1.5}`))
	want := []string{"zeta", "segments", "info", "elapsed", RawTitle}
	if len(panel.Sections) != len(want) {
		t.Fatalf("expected %d sections, got %d", len(want), len(panel.Sections))
	}
	for i, title := range want {
		if panel.Sections[i].Title != title {
			t.Fatalf("section %d: expected %s, got %s", i, title, panel.Sections[i].Title)
		}
	}
	if panel.Sections[0].Expanded || panel.Sections[1].Expanded || panel.Sections[3].Expanded {
		t.Fatalf("only results and info start expanded")
	}
	segments := panel.Sections[1].Content
	if !segments.IsGroup() || segments.Items[0].String() != `0: {"start":0,"text":"ciao"}` {
		t.Fatalf("unexpected segments content %+v", segments)
	}
	elapsed := panel.Sections[3].Content
	if !elapsed.IsLeaf() || elapsed.Text != "1.5" {
		t.Fatalf("scalar should render as leaf literal, got %+v", elapsed)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `["a"]`, ``} {
		panel := Parse(200, []byte(body))
		if !panel.IsError() {
			t.Fatalf("expected error panel for %q", body)
		}
		if !strings.Contains(panel.Error, ErrMalformedResponse.Error()) {
			t.Fatalf("unexpected error text %q", panel.Error)
		}
	}
}

func TestFailure(t *testing.T) {
	panel := Failure(errors.New("connection refused"))
	if panel.Error != "connection refused" || len(panel.Sections) != 0 {
		t.Fatalf("unexpected failure panel %+v", panel)
	}
}

func TestToggle(t *testing.T) {
	panel := Parse(200, []byte(`{"results": "hello"}`))
	expanded, err := panel.Toggle(0)
	if err != nil || expanded {
		t.Fatalf("expected collapse, got %v %v", expanded, err)
	}
	expanded, err = panel.Toggle(1)
	if err != nil || !expanded {
		t.Fatalf("expected raw to expand, got %v %v", expanded, err)
	}
	if _, err := panel.Toggle(5); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := HTML(&buf, Parse(200, []byte(`{"results": "<b>hi</b>", "info": {"duration": 3}}`))); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<details open><summary>results</summary>") {
		t.Fatalf("results should be open: %s", out)
	}
	if !strings.Contains(out, "&lt;b&gt;hi&lt;/b&gt;") {
		t.Fatalf("leaf text must be escaped: %s", out)
	}
	if !strings.Contains(out, "<li>duration: 3</li>") {
		t.Fatalf("missing group item: %s", out)
	}
	if !strings.Contains(out, "<details><summary>raw</summary>") {
		t.Fatalf("raw should be collapsed: %s", out)
	}

	buf.Reset()
	if err := HTML(&buf, Parse(500, []byte(`{"error": "decode failed"}`))); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if strings.Contains(buf.String(), "<details") || !strings.Contains(buf.String(), "decode failed") {
		t.Fatalf("unexpected error html: %s", buf.String())
	}
}

func TestHTMLFragmentToggleForms(t *testing.T) {
	out, err := HTMLFragment(Parse(200, []byte(`{"results": "hello"}`)), "/recordings/abc")
	if err != nil {
		t.Fatalf("HTMLFragment: %v", err)
	}
	if !strings.Contains(string(out), `<form method="post" action="/recordings/abc/sections/0/toggle" class="toggle"><button>results</button></form>`) {
		t.Fatalf("missing results toggle form: %s", out)
	}
	if !strings.Contains(string(out), `action="/recordings/abc/sections/1/toggle"`) {
		t.Fatalf("missing raw toggle form: %s", out)
	}

	plain, err := HTMLFragment(Parse(200, []byte(`{"results": "hello"}`)), "")
	if err != nil {
		t.Fatalf("HTMLFragment: %v", err)
	}
	if strings.Contains(string(plain), "<form") {
		t.Fatalf("no toggle forms expected without a base: %s", plain)
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	if err := Text(&buf, Parse(200, []byte(`{"results": "hello", "info": {"duration": 3}}`))); err != nil {
		t.Fatalf("Text: %v", err)
	}
	want := "[-] results\n    hello\n[-] info\n    duration: 3\n[+] raw\n"
	if buf.String() != want {
		t.Fatalf("unexpected text output:\n%s", buf.String())
	}
}
