package hosts

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const systemHosts = `127.0.0.1	localhost
::1	localhost
255.255.255.255	broadcasthost
`

func TestRenderAppendsSection(t *testing.T) {
	got := Render(systemHosts, []string{"example.com"})
	want := systemHosts + "\n" + `# >>> sitefence BEGIN
0.0.0.0 example.com
:: example.com
0.0.0.0 www.example.com
:: www.example.com
# <<< sitefence END
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderWWWPeer(t *testing.T) {
	got := Render("", []string{"www.apple.com"})
	want := `# >>> sitefence BEGIN
0.0.0.0 www.apple.com
:: www.apple.com
0.0.0.0 apple.com
:: apple.com
# <<< sitefence END
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderDedupesPeers(t *testing.T) {
	got := Render("", []string{"example.com", "www.example.com"})
	if n := strings.Count(got, "0.0.0.0 www.example.com\n"); n != 1 {
		t.Errorf("www.example.com rendered %d times, want 1", n)
	}
}

func TestRenderEmptyRemovesSection(t *testing.T) {
	sectioned := Render(systemHosts, []string{"example.com", "youtube.com"})
	got := Render(sectioned, nil)
	if diff := cmp.Diff(systemHosts, got); diff != "" {
		t.Errorf("Render(sectioned, nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderEmptyWithoutSectionIsUnchanged(t *testing.T) {
	original := "127.0.0.1 localhost\n\n\n# trailing blank lines kept\n\n"
	if got := Render(original, nil); got != original {
		t.Errorf("Render(original, nil) = %q, want unchanged %q", got, original)
	}
}

func TestRenderIdempotent(t *testing.T) {
	inputs := []string{
		"",
		systemHosts,
		"127.0.0.1 localhost",
		"127.0.0.1 localhost\n\n\n",
		"a\n\n" + BeginMarker + "\n0.0.0.0 old.com\n" + EndMarker + "\n\nb\n",
	}
	domainSets := [][]string{nil, {"example.com"}, {"youtube.com", "www.reddit.com"}}

	for _, in := range inputs {
		for _, ds := range domainSets {
			once := Render(in, ds)
			twice := Render(once, ds)
			if once != twice {
				t.Errorf("Render not idempotent for %q / %v:\nonce:  %q\ntwice: %q", in, ds, once, twice)
			}
		}
	}
}

func TestRenderSingleTrailingNewline(t *testing.T) {
	got := Render("127.0.0.1 localhost\n\n\n\n", []string{"example.com"})
	if !strings.HasSuffix(got, EndMarker+"\n") || strings.HasSuffix(got, "\n\n") {
		t.Errorf("Render output does not end with exactly one newline: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("Render output has a blank-line run: %q", got)
	}
}

func TestStripMiddleSection(t *testing.T) {
	in := "a\n\n" + BeginMarker + "\n0.0.0.0 old.com\n" + EndMarker + "\n\nb\n"
	want := "a\n\nb\n"
	if got := Strip(in); got != want {
		t.Errorf("Strip = %q, want %q", got, want)
	}
}

func TestStripDanglingBegin(t *testing.T) {
	in := "a\n" + BeginMarker + "\n0.0.0.0 old.com\n"
	if got := Strip(in); got != "a\n" {
		t.Errorf("Strip = %q, want %q", got, "a\n")
	}
}

func TestStripMultipleSections(t *testing.T) {
	section := BeginMarker + "\n0.0.0.0 x.com\n" + EndMarker + "\n"
	in := "a\n" + section + "b\n" + section
	want := "a\n\nb\n"
	if got := Strip(in); got != want {
		t.Errorf("Strip = %q, want %q", got, want)
	}
}

func TestHasSection(t *testing.T) {
	if HasSection(systemHosts) {
		t.Error("HasSection(systemHosts) = true, want false")
	}
	if !HasSection(Render(systemHosts, []string{"example.com"})) {
		t.Error("HasSection(rendered) = false, want true")
	}
}

func TestHosts(t *testing.T) {
	text := Render(systemHosts, []string{"example.com", "youtube.com"})
	want := []string{"example.com", "www.example.com", "youtube.com", "www.youtube.com"}
	if diff := cmp.Diff(want, Hosts(text)); diff != "" {
		t.Errorf("Hosts mismatch (-want +got):\n%s", diff)
	}
	if got := Hosts(systemHosts); len(got) != 0 {
		t.Errorf("Hosts(systemHosts) = %v, want empty", got)
	}
}
