package namecache

import (
	"sort"
	"testing"

	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
)

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	return c
}

func TestCache_AddPopulatesFullNamesAndParts(t *testing.T) {
	cat := mustCatalog(t)
	c := New()

	if c.Initialized() {
		t.Fatal("fresh cache must start uninitialized")
	}

	added := c.Add("Jane Doe", cat)
	if !added {
		t.Fatal("expected Add to report a change")
	}
	if !c.Initialized() {
		t.Fatal("expected cache to be initialized after a successful Add")
	}

	full := c.FullNames()
	if len(full) != 1 || full[0] != "jane doe" {
		t.Fatalf("expected full_names = [\"jane doe\"], got %v", full)
	}

	parts := c.Parts()
	sort.Strings(parts)
	if len(parts) != 2 || parts[0] != "doe" || parts[1] != "jane" {
		t.Fatalf("expected parts = [doe jane], got %v", parts)
	}
}

func TestCache_ShortAndStopWordPartsExcluded(t *testing.T) {
	cat := mustCatalog(t)
	c := New()

	c.Add("Al Ng", cat)
	for _, p := range c.Parts() {
		if len([]rune(p)) < 3 {
			t.Fatalf("part %q shorter than 3 runes should have been excluded", p)
		}
	}

	c.Add("The Patient", cat)
	for _, p := range c.Parts() {
		if p == "the" || p == "patient" {
			t.Fatalf("stop word %q should have been excluded from parts", p)
		}
	}
}

func TestCache_DuplicateAddIsNotANewChange(t *testing.T) {
	cat := mustCatalog(t)
	c := New()

	c.Add("Jane Doe", cat)
	if c.Add("jane doe", cat) {
		t.Fatal("re-adding the same casefolded full name should report no change")
	}
}
