package format

import "testing"

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`price < 5k & "clean" <b>`)
	want := `price &lt; 5k &amp; "clean" &lt;b&gt;`
	if got != want {
		t.Fatalf("escaped = %q, want %q", got, want)
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags(`<div class="x"><b>Corolla</b> &amp; more</div>`)
	if got != "Corolla & more" {
		t.Fatalf("stripped = %q", got)
	}
}

func TestHasDisallowedTags(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"<b>bold</b> <i>it</i> <code>x</code> <u>u</u>", false},
		{"no tags at all", false},
		{"<B>case insensitive</B>", false},
		{"<div>block</div>", true},
		{`<a href="https://example.com">link</a>`, true},
		{"<b>ok</b> but <span>not this</span>", true},
	}
	for _, tc := range cases {
		if got := HasDisallowedTags(tc.text); got != tc.want {
			t.Fatalf("HasDisallowedTags(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
