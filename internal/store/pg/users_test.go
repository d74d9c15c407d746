package pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/knock/internal/domain/repository"
)

func TestListUsersQueryWithoutSearch(t *testing.T) {
	q, args := listUsersQuery(repository.ListUsersFilter{Limit: 20, Offset: 40})

	assert.NotContains(t, q, "WHERE")
	assert.Equal(t, []any{20, 40}, args)
}

func TestListUsersQueryFiltersByEmail(t *testing.T) {
	q, args := listUsersQuery(repository.ListUsersFilter{Search: "  ana  "})

	assert.Contains(t, q, "WHERE email ILIKE $3")
	require.Len(t, args, 3)
	assert.Equal(t, "%ana%", args[2])
}

func TestListUsersQueryClampsLimit(t *testing.T) {
	_, args := listUsersQuery(repository.ListUsersFilter{Limit: 9999})
	assert.Equal(t, 100, args[0])

	_, args = listUsersQuery(repository.ListUsersFilter{})
	assert.Equal(t, 100, args[0])
}
