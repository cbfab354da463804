package entity

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestManagerDependsOnlyOnStoreContract keeps the generic manager and the
// domain package free of concrete backends and transports. They must reach
// persistence through domain.Store.
func TestManagerDependsOnlyOnStoreContract(t *testing.T) {
	forbidden := []string{
		"calendarcore/internal/infra",
		"calendarcore/internal/transport",
		"calendarcore/internal/core",
		"calendarcore/internal/dispatch",
	}
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, "calendarcore/internal/entity", "calendarcore/pkg/domain")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var violations []string
	for _, pkg := range pkgs {
		for importPath := range pkg.Imports {
			for _, prefix := range forbidden {
				if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
					violations = append(violations, pkg.PkgPath+": "+importPath)
				}
			}
		}
	}
	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("forbidden import: %s", v)
	}
}
