package acquire_test

import (
	"testing"

	"stocksentinel/acquire"
)

func TestSiteForURL(t *testing.T) {
	for _, c := range []struct {
		url, want string
	}{
		{"https://www.morningstar.fr/fr/funds/snapshot", "morningstar"},
		{"https://www.MORNINGSTAR.co.uk/uk/funds/x", "morningstar"},
		{"https://www.quantalys.com/Fonds/12345", "quantalys"},
		{"https://example.com/morningstar-review", "other"},
		{"https://boursorama.com/quote", "other"},
	} {
		if got := acquire.SiteForURL(c.url); got != c.want {
			t.Errorf("SiteForURL(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	for _, c := range []struct {
		in   string
		max  int
		want string
	}{
		{"https://www.quantalys.com/Fonds/12345", 60, "www-quantalys-com-fonds-12345"},
		{"HTTP://A.B/C?d=e&f=g", 60, "a-b-c-d-e-f-g"},
		{"https://site.example/a//b__c", 10, "site-examp"},
		{"  https://x.example/  ", 60, "x-example"},
	} {
		got := acquire.Slugify(c.in, c.max)
		if got != c.want {
			t.Errorf("Slugify(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[acquire.Status]bool{
		acquire.StatusQueued:     false,
		acquire.StatusNavigating: false,
		acquire.StatusNavDone:    false,
		acquire.StatusPaused:     false,
		acquire.StatusCaptured:   true,
		acquire.StatusError:      true,
	}
	for st, want := range terminal {
		if got := st.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", st, got, want)
		}
	}
}
