package semver

import (
	"errors"
	"testing"
)

func testPolicy() *Policy {
	return NewPolicy(map[string]BumpRule{
		"release/patch": BumpPatch,
		"release/minor": BumpMinor,
	})
}

func TestNextVersionPatchBump(t *testing.T) {
	plan, err := testPolicy().NextVersion("release/patch", Version{Major: 1, Minor: 2, Patch: 3})
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if got := plan.VersionAfter.String(); got != "1.2.4" {
		t.Fatalf("versionAfter = %q, want 1.2.4", got)
	}
	if plan.TagAfter() != "v1.2.4" {
		t.Fatalf("tagAfter = %q, want v1.2.4", plan.TagAfter())
	}
	if plan.TagBefore() != "v1.2.3" {
		t.Fatalf("tagBefore = %q, want v1.2.3", plan.TagBefore())
	}
}

func TestNextVersionMinorBumpResetsPatch(t *testing.T) {
	plan, err := testPolicy().NextVersion("release/minor", Version{Major: 1, Minor: 2, Patch: 3})
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if got := plan.VersionAfter.String(); got != "1.3.0" {
		t.Fatalf("versionAfter = %q, want 1.3.0", got)
	}
}

func TestNextVersionStrictlyIncreases(t *testing.T) {
	versions := []Version{
		{},
		{Major: 0, Minor: 0, Patch: 9},
		{Major: 1, Minor: 2, Patch: 3},
		{Major: 4, Minor: 9, Patch: 0},
	}
	for _, branch := range []string{"release/patch", "release/minor"} {
		for _, v := range versions {
			plan, err := testPolicy().NextVersion(branch, v)
			if err != nil {
				t.Fatalf("NextVersion(%s, %s): %v", branch, v, err)
			}
			if !v.Less(plan.VersionAfter) {
				t.Fatalf("bump(%s, %s) = %s, not strictly greater", branch, v, plan.VersionAfter)
			}
		}
	}
}

func TestNextVersionIdempotentUntilPersisted(t *testing.T) {
	p := testPolicy()
	first, err := p.NextVersion("release/patch", Version{Major: 2, Minor: 0, Patch: 1})
	if err != nil {
		t.Fatalf("NextVersion first: %v", err)
	}
	second, err := p.NextVersion("release/patch", Version{Major: 2, Minor: 0, Patch: 1})
	if err != nil {
		t.Fatalf("NextVersion second: %v", err)
	}
	if first != second {
		t.Fatalf("plans differ: %+v vs %+v", first, second)
	}
}

func TestNextVersionRejectsUnknownBranch(t *testing.T) {
	_, err := testPolicy().NextVersion("feature/foo", Version{Major: 1})
	if !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("err = %v, want ErrUnknownChannel", err)
	}
}

func TestTagBeforeEmptyOnFirstRelease(t *testing.T) {
	plan, err := testPolicy().NextVersion("release/patch", Version{})
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if plan.TagBefore() != "" {
		t.Fatalf("tagBefore = %q, want empty for first release", plan.TagBefore())
	}
	if plan.TagAfter() != "v0.0.1" {
		t.Fatalf("tagAfter = %q, want v0.0.1", plan.TagAfter())
	}
}

func TestParseBumpRule(t *testing.T) {
	if _, err := ParseBumpRule("patch"); err != nil {
		t.Fatalf("ParseBumpRule(patch): %v", err)
	}
	if _, err := ParseBumpRule("major"); err == nil {
		t.Fatalf("ParseBumpRule(major) should fail: only patch and minor channels exist")
	}
}
