package format

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	if got := EscapeMarkdownV2("1. Asha (x_y)!"); got != `1\. Asha \(x\_y\)\!` {
		t.Fatalf("EscapeMarkdownV2 = %q", got)
	}
}

func TestBoldToMarkdownV2(t *testing.T) {
	cases := map[string]string{
		"You scored **7** out of **10**.": `You scored *7* out of *10*\.`,
		"plain":                           "plain",
		"a ** b":                          `a \*\* b`,
		"**x** and ** tail":               `*x* and \*\* tail`,
	}
	for in, want := range cases {
		if got := BoldToMarkdownV2(in); got != want {
			t.Fatalf("BoldToMarkdownV2(%q) = %q, want %q", in, got, want)
		}
	}
}
