package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const schema = `
-- people
create table if not exists people (
    name text primary key, -- unique
    age integer not null
);

create index if not exists people_age on people(age);
`

func TestStatements(t *testing.T) {
	stmts := Statements(schema)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "create table if not exists people")
	require.NotContains(t, stmts[0], "unique")
	require.Equal(t, "create index if not exists people_age on people(age)", stmts[1])
}

func TestIsRemote(t *testing.T) {
	require.True(t, IsRemote("libsql://works.turso.io?authToken=x"))
	require.True(t, IsRemote("http://127.0.0.1:8080"))
	require.False(t, IsRemote(":memory:"))
	require.False(t, IsRemote("data/works.db"))
}

func TestApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Apply(ctx, db, schema))
	// applying twice is a no-op
	require.NoError(t, Apply(ctx, db, schema))

	_, err = db.Exec("insert into people(name, age) values (?, ?)", "alice", 30)
	require.NoError(t, err)

	var age int
	require.NoError(t, db.QueryRow("select age from people where name = ?", "alice").Scan(&age))
	require.Equal(t, 30, age)
}
