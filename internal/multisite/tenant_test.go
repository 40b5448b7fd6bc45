package multisite_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/wpmu-clone/internal/multisite"
)

func TestParseTenantRowsSkipsMalformedRows(testInstance *testing.T) {
	output := "1\texample.com\t/\n" +
		"2\tblog.example.com\t/\n" +
		"0\tzero.example.com\t/\n" +
		"-4\tnegative.example.com\t/\n" +
		"abc\tbroken.example.com\t/\n" +
		"\n" +
		"3\tblog.example.com\t/dir/\r\n"

	tenants := multisite.ParseTenantRows(output)

	require.Equal(testInstance, []multisite.Tenant{
		{ID: 1, Domain: "example.com", Path: "/"},
		{ID: 2, Domain: "blog.example.com", Path: "/"},
		{ID: 3, Domain: "blog.example.com", Path: "/dir/"},
	}, tenants)
}

func TestParseTenantRowsCountsOnlyPositiveIdentifiers(testInstance *testing.T) {
	testCases := []struct {
		name          string
		output        string
		expectedCount int
	}{
		{name: "empty_output", output: "", expectedCount: 0},
		{name: "single_row_without_newline", output: "7\tseven.example.com\t/", expectedCount: 1},
		{name: "row_missing_path", output: "8\teight.example.com", expectedCount: 1},
		{name: "only_invalid_rows", output: "0\ta\t/\n-1\tb\t/\n", expectedCount: 0},
		{name: "repeated_identifier_kept_per_row", output: "2\ta\t/\n2\tb\t/\n", expectedCount: 2},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Len(testInstance, multisite.ParseTenantRows(testCase.output), testCase.expectedCount)
		})
	}
}

func TestParseTenantRowsKeepsRepeatedIdentifiersInOrder(testInstance *testing.T) {
	tenants := multisite.ParseTenantRows("2\ta.example.com\t/\n2\tb.example.com\t/\n")

	require.Equal(testInstance, []multisite.Tenant{
		{ID: 2, Domain: "a.example.com", Path: "/"},
		{ID: 2, Domain: "b.example.com", Path: "/"},
	}, tenants)
}

func TestTenantPrimaryAndAddress(testInstance *testing.T) {
	primary := multisite.Tenant{ID: 1, Domain: "example.com", Path: "/"}
	secondary := multisite.Tenant{ID: 2, Domain: "blog.example.com", Path: "/dir/"}

	require.True(testInstance, primary.IsPrimary())
	require.False(testInstance, secondary.IsPrimary())
	require.Equal(testInstance, "blog.example.com/dir/", secondary.Address())
}
