package introspection

import (
	"testing"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/schema"
)

func iface(t *testing.T, name string, major, minor int) *schema.Interface {
	t.Helper()
	i, err := schema.NewInterface(schema.Interface{
		Name:      name,
		Major:     major,
		Minor:     minor,
		Ownership: schema.OwnershipDevice,
		Kind:      schema.KindDatastream,
		Mappings: []schema.Mapping{
			{PathTemplate: "/x", Type: schema.Integer32},
		},
	})
	if err != nil {
		t.Fatalf("NewInterface(%s): %v", name, err)
	}
	return i
}

// TestCanonicalStringLifecycle exercises the exact add/remove/length
// sequence used to sanity-check the canonical string: test.interface.a
// (0:1), test.interface.b (0:1), test.interface.c (1:0) registered, then
// "c" and "a" removed one at a time.
func TestCanonicalStringLifecycle(t *testing.T) {
	r := New()

	if err := r.Add(iface(t, "test.interface.a", 0, 1)); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := r.Add(iface(t, "test.interface.b", 0, 1)); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if err := r.Add(iface(t, "test.interface.c", 1, 0)); err != nil {
		t.Fatalf("Add c: %v", err)
	}

	want := "test.interface.a:0:1;test.interface.b:0:1;test.interface.c:1:0"
	got := r.CanonicalString()
	if got != want {
		t.Fatalf("CanonicalString = %q, want %q", got, want)
	}
	if len(got) != 62 {
		t.Fatalf("len(CanonicalString) = %d, want 62", len(got))
	}

	if err := r.Remove("test.interface.c"); err != nil {
		t.Fatalf("Remove c: %v", err)
	}
	got = r.CanonicalString()
	if got != "test.interface.a:0:1;test.interface.b:0:1" {
		t.Fatalf("CanonicalString after removing c = %q", got)
	}
	if len(got) != 41 {
		t.Fatalf("len(CanonicalString) after removing c = %d, want 41", len(got))
	}

	if err := r.Remove("test.interface.a"); err != nil {
		t.Fatalf("Remove a: %v", err)
	}
	if _, err := r.Get("test.interface.a"); !agenterr.Is(err, agenterr.InterfaceNotFound) {
		t.Errorf("Get(a) after removal: expected InterfaceNotFound, got %v", err)
	}
	if err := r.Remove("test.interface.a"); !agenterr.Is(err, agenterr.InterfaceNotFound) {
		t.Errorf("double Remove(a): expected InterfaceNotFound, got %v", err)
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	r := New()
	if err := r.Add(iface(t, "test.interface.a", 0, 1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := r.Add(iface(t, "test.interface.a", 0, 2))
	if !agenterr.Is(err, agenterr.InterfaceAlreadyPresent) {
		t.Errorf("expected InterfaceAlreadyPresent, got %v", err)
	}
}

func TestAllIsSortedByName(t *testing.T) {
	r := New()
	for _, name := range []string{"zeta", "alpha", "mu"} {
		if err := r.Add(iface(t, name, 1, 0)); err != nil {
			t.Fatalf("Add %s: %v", name, err)
		}
	}

	var got []string
	for i := range r.All() {
		got = append(got, i.Name)
	}
	want := []string{"alpha", "mu", "zeta"}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("All()[%d] = %q, want %q", i, got[i], name)
		}
	}
}

func TestAllStopsOnFalse(t *testing.T) {
	r := New()
	for _, name := range []string{"a", "b", "c"} {
		r.Add(iface(t, name, 1, 0))
	}

	count := 0
	for range r.All() {
		count++
		if count == 1 {
			break
		}
	}
	if count != 1 {
		t.Errorf("expected iteration to stop after 1, saw %d", count)
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	r1 := New()
	r1.Add(iface(t, "a", 0, 1))

	r2 := New()
	r2.Add(iface(t, "a", 0, 2))

	if r1.Fingerprint() == r2.Fingerprint() {
		t.Error("differing registries should not share a fingerprint")
	}

	r3 := New()
	r3.Add(iface(t, "a", 0, 1))
	if r1.Fingerprint() != r3.Fingerprint() {
		t.Error("identical registries should share a fingerprint")
	}
}

func TestLen(t *testing.T) {
	r := New()
	if r.Len() != 0 {
		t.Fatalf("empty registry Len = %d", r.Len())
	}
	r.Add(iface(t, "a", 1, 0))
	if r.Len() != 1 {
		t.Fatalf("Len after Add = %d", r.Len())
	}
}
