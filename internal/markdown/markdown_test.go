package markdown

import "testing"

func TestConvertHeadings(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<h1>Title</h1>", "# Title"},
		{"<h2>Sub</h2>", "## Sub"},
		{"<h6>Deep</h6>", "###### Deep"},
	}
	for _, tc := range cases {
		if got := Convert(tc.in); got != tc.want {
			t.Fatalf("Convert(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConvertInline(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`<a href="https://x.io/a">link</a>`, "[link](https://x.io/a)"},
		{`<img src="/i.png" alt="pic">`, "![pic](/i.png)"},
		{`<img alt="pic" src="/i.png">`, "![pic](/i.png)"},
		{`<img src="/i.png">`, "![](/i.png)"},
		{"<strong>x</strong>", "**x**"},
		{"<b>x</b>", "**x**"},
		{"<em>y</em>", "*y*"},
		{"<i>y</i>", "*y*"},
		{"<code>f()</code>", "`f()`"},
	}
	for _, tc := range cases {
		if got := Convert(tc.in); got != tc.want {
			t.Fatalf("Convert(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConvertLists(t *testing.T) {
	got := Convert("<ul><li>one</li><li>two</li></ul>")
	want := "- one\n- two"
	if got != want {
		t.Fatalf("unordered list = %q, want %q", got, want)
	}

	got = Convert("<ol><li>first</li><li>second</li></ol>")
	want = "1. first\n2. second"
	if got != want {
		t.Fatalf("ordered list = %q, want %q", got, want)
	}
}

func TestConvertBlockquoteAndPre(t *testing.T) {
	if got := Convert("<blockquote>wise words</blockquote>"); got != "> wise words" {
		t.Fatalf("blockquote = %q", got)
	}
	if got := Convert("<pre>x := 1</pre>"); got != "```\nx := 1\n```" {
		t.Fatalf("pre = %q", got)
	}
}

func TestConvertStripsScriptAndStyle(t *testing.T) {
	in := `<p>keep</p><script>alert("no")</script><style>.x{color:red}</style>`
	if got := Convert(in); got != "keep" {
		t.Fatalf("Convert(%q) = %q, want %q", in, got, "keep")
	}
}

func TestConvertDecodesEntities(t *testing.T) {
	if got := Convert("<p>a &amp; b &lt;c&gt;</p>"); got != "a & b <c>" {
		t.Fatalf("entities = %q", got)
	}
}

func TestConvertCollapsesWhitespace(t *testing.T) {
	in := "<p>a</p><p>b</p><p>c</p>"
	want := "a\n\nb\n\nc"
	if got := Convert(in); got != want {
		t.Fatalf("Convert(%q) = %q, want %q", in, got, want)
	}
	if got := Convert("<span>a\t\t b</span>"); got != "a b" {
		t.Fatalf("space runs = %q", got)
	}
}

// Wrapping plain text in a paragraph and converting must yield the text
// back unchanged.
func TestConvertPlainTextRoundTrip(t *testing.T) {
	plain := "Just a sentence with no markup."
	if got := Convert("<p>" + plain + "</p>"); got != plain {
		t.Fatalf("round trip = %q, want %q", got, plain)
	}
}

func TestConvertUnknownTagsStripped(t *testing.T) {
	if got := Convert("<article><section>body</section></article>"); got != "body" {
		t.Fatalf("unknown tags = %q", got)
	}
}

func TestConvertEmpty(t *testing.T) {
	if got := Convert(""); got != "" {
		t.Fatalf("Convert(\"\") = %q, want empty", got)
	}
}
