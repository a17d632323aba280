package domain

import (
	"testing"

	"eggjnd/testutil"
)

// The domain package is shared by every layer and must stay free of
// internal and infrastructure imports.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.InternalImportForbidden, testutil.InfraImportForbidden),
		"pkg/domain is imported by every layer")
}
