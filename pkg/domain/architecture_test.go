package domain

import (
	"testing"

	"tracefood/testutil"
)

func TestDomainImportsOnlyStandardLibrary(t *testing.T) {
	forbidden := func(path string) bool {
		return testutil.ThirdPartyImport(path) || testutil.InternalImportForbidden(path)
	}
	testutil.AssertNoDirectImports(t, ".", forbidden, "pkg/domain is shared by every backend and transport")
	testutil.AssertNoTransitiveDependency(t, ".", forbidden, "pkg/domain must stay dependency free")
}
