package taskpool

import "testing"

func TestSubstituteIsSinglePassAndSimultaneous(t *testing.T) {
	params := map[string]interface{}{
		"a": "$b",
		"b": "literal",
	}
	got := substitute("$a $b", params)
	if got != "$b literal" {
		t.Fatalf("expected no re-scan of substituted text, got %q", got)
	}
}

func TestSubstitutePrefersLongerKeys(t *testing.T) {
	params := map[string]interface{}{
		"p":     "short",
		"param": "long",
	}
	got := substitute("$param", params)
	if got != "long" {
		t.Fatalf("expected the longer key to win, got %q", got)
	}
}

func TestSubstituteLeavesUnknownTokensAlone(t *testing.T) {
	got := substitute("echo $missing", map[string]interface{}{"other": "x"})
	if got != "echo $missing" {
		t.Fatalf("got %q", got)
	}
}

func TestMergeParamsOverlay(t *testing.T) {
	merged := mergeParams(
		map[string]interface{}{"a": 1, "b": 2},
		map[string]interface{}{"b": 3},
	)
	if merged["a"] != 1 || merged["b"] != 3 {
		t.Fatalf("got %v", merged)
	}
}

func TestPyReprQuotingRules(t *testing.T) {
	cases := map[string]string{
		"hello":       `'hello'`,
		"it's":        `"it's"`,
		`say "hi"`:    `'say "hi"'`,
		"back\\slash": `'back\\slash'`,
		"line\nbreak": `'line\nbreak'`,
	}
	for in, want := range cases {
		if got := pyRepr(in); got != want {
			t.Fatalf("pyRepr(%q) = %q, want %q", in, got, want)
		}
	}
}
