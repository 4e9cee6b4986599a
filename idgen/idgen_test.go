package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_SortsByTime(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for range 100 {
		id := gen()
		if id <= prev {
			t.Fatalf("not increasing: %s after %s", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	for name, gen := range map[string]Generator{"run_": Run, "job_": Job, "req_": Request} {
		id := gen()
		if !strings.HasPrefix(id, name) {
			t.Errorf("%s: got %q", name, id)
		}
		if len(id) != len(name)+36 {
			t.Errorf("%s: length %d", name, len(id))
		}
	}
}

func TestUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := Job()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestParse(t *testing.T) {
	id := Run()
	got, err := Parse(strings.ToUpper(id[:4]) + id[4:])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(got, id[4:]) {
		t.Fatalf("canonical: got %q", got)
	}

	if _, err := Parse(UUIDv7()()); err != nil {
		t.Fatalf("bare uuid: %v", err)
	}
	for _, bad := range []string{"", "run_", "run_not-a-uuid", "q_1_1"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q): expected error", bad)
		}
	}
}
