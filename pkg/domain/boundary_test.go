package domain_test

import (
	"testing"

	"permitdesk/testutil"
)

// The domain package is the repository's contract surface: stdlib only, and
// never a dependency on internal packages.
func TestDomainImportsStdlibOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStdlibForbidden, "pkg/domain must not import third-party packages")
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "pkg/domain must not import internal packages")
}
