package recognize

import (
	"testing"

	"github.com/karim-bhalwani/context-aware-redactor/internal/annotate"
	"github.com/karim-bhalwani/context-aware-redactor/internal/catalog"
	"github.com/karim-bhalwani/context-aware-redactor/internal/namecache"
	"github.com/karim-bhalwani/context-aware-redactor/internal/nlpengine"
	"github.com/karim-bhalwani/context-aware-redactor/internal/spans"
)

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	return c
}

func TestPass1_PatientNamePattern(t *testing.T) {
	cat := mustCatalog(t)
	text := "Patient Name: Jane Doe. DOB: 1980-05-12."
	doc, err := annotate.Annotate(nlpengine.NewHeuristicFacility(), text, cat)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	got := Pass1(text, doc, cat, nil)
	var sawName, sawDOB bool
	for _, s := range got {
		if s.EntityType == spans.PatientName && s.RuleName == "PatientNameLabel" {
			sawName = true
		}
		if s.EntityType == spans.DOB {
			sawDOB = true
		}
	}
	if !sawName {
		t.Fatal("expected the patient-name-pattern recognizer to fire")
	}
	if !sawDOB {
		t.Fatal("expected the DOB pattern recognizer to fire")
	}
}

func TestPass1_CreditCardRejectsInvalidLuhn(t *testing.T) {
	cat := mustCatalog(t)
	text := "Card number 4111111111111112 was declined." // fails Luhn
	doc, err := annotate.Annotate(nlpengine.NewHeuristicFacility(), text, cat)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	got := Pass1(text, doc, cat, nil)
	for _, s := range got {
		if s.EntityType == spans.CreditCard {
			t.Fatalf("expected the Luhn-invalid card number not to be emitted, got %v", s)
		}
	}
}

func TestPass1_CreditCardAcceptsValidLuhn(t *testing.T) {
	cat := mustCatalog(t)
	text := "Card number 4111111111111111 was charged." // valid test Visa number
	doc, err := annotate.Annotate(nlpengine.NewHeuristicFacility(), text, cat)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	got := Pass1(text, doc, cat, nil)
	var found bool
	for _, s := range got {
		if s.EntityType == spans.CreditCard {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the Luhn-valid card number to be emitted")
	}
}

func TestPassthroughPersons_EmitsUnclaimedPerson(t *testing.T) {
	cat := mustCatalog(t)
	text := "Visitor Mary Jones waited in the lobby."
	doc, err := annotate.Annotate(nlpengine.NewHeuristicFacility(), text, cat)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	got := PassthroughPersons(doc, nil)
	var found bool
	for _, s := range got {
		if s.EntityType == spans.Person && s.RuleName == "PassthroughPerson" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an incidental PERSON entity to produce a passthrough span")
	}
}

func TestPassthroughPersons_SkipsProvider(t *testing.T) {
	cat := mustCatalog(t)
	text := "Dr. John Smith examined the patient."
	doc, err := annotate.Annotate(nlpengine.NewHeuristicFacility(), text, cat)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}

	got := PassthroughPersons(doc, nil)
	for _, s := range got {
		if s.EntityType == spans.Person {
			t.Fatalf("expected a provider-tagged name not to be passed through, got %v", s)
		}
	}
}

func mustAnnotate(t *testing.T, text string, cat *catalog.Catalog) annotate.Document {
	t.Helper()
	doc, err := annotate.Annotate(nlpengine.NewHeuristicFacility(), text, cat)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	return doc
}

func TestPass2_NoOpWhenCacheUninitialized(t *testing.T) {
	cat := mustCatalog(t)
	cache := namecache.New()
	text := "Jane Doe visited."
	got := Pass2(text, mustAnnotate(t, text, cat), cache, cat, nil)
	if len(got) != 0 {
		t.Fatalf("expected no pass-2 spans from an uninitialized cache, got %v", got)
	}
}

func TestPass2_TierAFindsFullName(t *testing.T) {
	cat := mustCatalog(t)
	cache := namecache.New()
	cache.Add("Jane Doe", cat)

	text := "Jane Doe returned for a follow-up. Jane Doe was stable."
	got := Pass2(text, mustAnnotate(t, text, cat), cache, cat, nil)
	var count int
	for _, s := range got {
		if s.EntityType == spans.PatientName && s.RuleName == "Pass2TierA" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 Tier A matches, got %d", count)
	}
}

func TestPass2_ProviderZoneExcludesBothTiers(t *testing.T) {
	cat := mustCatalog(t)
	cache := namecache.New()
	cache.Add("Smith", cat)

	text := "Dr. Smith reviewed the chart."
	got := Pass2(text, mustAnnotate(t, text, cat), cache, cat, nil)
	if len(got) != 0 {
		t.Fatalf("expected the provider exclusion zone to discard every pass-2 match, got %v", got)
	}
}

func TestPass2_TierBEmitsWithoutTitle(t *testing.T) {
	cat := mustCatalog(t)
	cache := namecache.New()
	cache.Add("Smith", cat)

	text := "Patient Smith returned today."
	got := Pass2(text, mustAnnotate(t, text, cat), cache, cat, nil)
	var found bool
	for _, s := range got {
		if s.RuleName == "Pass2TierB" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a Tier B match without a preceding title")
	}
}
