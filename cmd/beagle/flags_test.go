package main

import (
	"testing"

	"github.com/omsai/beagle-lib/internal/resource"
)

func TestParseFlagNames(t *testing.T) {
	flags, err := parseFlagNames([]string{"cpu", "double"})
	if err != nil {
		t.Fatalf("parseFlagNames: %v", err)
	}
	if !flags.Has(resource.CPU) || !flags.Has(resource.Double) {
		t.Fatalf("missing bits: %v", flags)
	}
	if flags.Has(resource.GPU) {
		t.Fatalf("unexpected gpu bit: %v", flags)
	}
}

func TestParseFlagNamesUnknown(t *testing.T) {
	if _, err := parseFlagNames([]string{"warp-drive"}); err == nil {
		t.Fatal("expected error for unknown flag name")
	}
}

func TestSelectionOptionsRestrict(t *testing.T) {
	restrictID = 1
	required = nil
	preferred = nil
	defer func() { restrictID = -1 }()

	restrict, req, pref, err := selectionOptions()
	if err != nil {
		t.Fatalf("selectionOptions: %v", err)
	}
	if len(restrict) != 1 || restrict[0] != 1 {
		t.Fatalf("restrict: got %v", restrict)
	}
	if req != 0 || pref != 0 {
		t.Fatalf("expected empty flag sets, got %v %v", req, pref)
	}
}
