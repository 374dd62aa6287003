package crud

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

type League struct {
	schema.Table
	ID         *int64
	LeagueName string
}

type Team struct {
	schema.Table
	ID       *int64
	TeamName string
	League   League
}

type Athlete struct {
	schema.Table
	ID     *int64
	Name   string
	Team   *Team
	Rating float64
}

type AthleteName struct {
	schema.Alt[Athlete]
	ID   *int64
	Name string
}

type Fixture struct {
	schema.Table
	ID   *int64
	Home *Team
	Away *Team
}

type Coach struct {
	schema.Table
	ID     *int64
	Name   string
	Mentor *Coach
}

type Chicken struct {
	schema.Table
	ID  *int64
	Egg *Egg
}

type Egg struct {
	schema.Table
	ID      *int64
	Chicken *Chicken
}

type TreeNode struct {
	schema.Table
	ID    *int64
	Value int64
	Lo    *TreeNode
	Hi    *TreeNode
}

// Stage0 starts a wide reference graph: each stage points twice at the next
type Stage0 struct {
	schema.Table
	ID *int64
	A  *Stage1
	B  *Stage1
}

type Stage1 struct {
	schema.Table
	ID *int64
	A  *Stage2
	B  *Stage2
}

type Stage2 struct {
	schema.Table
	ID *int64
	A  *Stage3
	B  *Stage3
}

type Stage3 struct {
	schema.Table
	ID *int64
	A  *Stage4
	B  *Stage4
}

type Stage4 struct {
	schema.Table
	ID *int64
	A  *Stage5
	B  *Stage5
}

type Stage5 struct {
	schema.Table
	ID *int64
	A  *StageLeaf
	B  *StageLeaf
}

type StageLeaf struct {
	schema.Table
	ID   *int64
	Name string
}

type Pick struct {
	Name string
	Team Team
}

type Matchup struct {
	Home Team
	Away Team
}

type Score struct {
	Name  string
	Total int64
}

var testDDL = []string{
	`CREATE TABLE League (id INTEGER PRIMARY KEY NOT NULL, league_name TEXT NOT NULL UNIQUE)`,
	`CREATE TABLE Team (id INTEGER PRIMARY KEY NOT NULL, team_name TEXT NOT NULL, league INTEGER NOT NULL REFERENCES League(id))`,
	`CREATE TABLE Athlete (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL, team INTEGER NULL REFERENCES Team(id), rating REAL NOT NULL)`,
	`CREATE TABLE Fixture (id INTEGER PRIMARY KEY NOT NULL, home INTEGER NULL REFERENCES Team(id), away INTEGER NULL REFERENCES Team(id))`,
	`CREATE TABLE Coach (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL, mentor INTEGER NULL REFERENCES Coach(id))`,
	`CREATE TABLE TreeNode (id INTEGER PRIMARY KEY NOT NULL, value INTEGER NOT NULL, lo INTEGER NULL REFERENCES TreeNode(id), hi INTEGER NULL REFERENCES TreeNode(id))`,
	`CREATE TABLE Stage0 (id INTEGER PRIMARY KEY NOT NULL, a INTEGER NULL REFERENCES Stage1(id), b INTEGER NULL REFERENCES Stage1(id))`,
	`CREATE TABLE Stage1 (id INTEGER PRIMARY KEY NOT NULL, a INTEGER NULL REFERENCES Stage2(id), b INTEGER NULL REFERENCES Stage2(id))`,
	`CREATE TABLE Stage2 (id INTEGER PRIMARY KEY NOT NULL, a INTEGER NULL REFERENCES Stage3(id), b INTEGER NULL REFERENCES Stage3(id))`,
	`CREATE TABLE Stage3 (id INTEGER PRIMARY KEY NOT NULL, a INTEGER NULL REFERENCES Stage4(id), b INTEGER NULL REFERENCES Stage4(id))`,
	`CREATE TABLE Stage4 (id INTEGER PRIMARY KEY NOT NULL, a INTEGER NULL REFERENCES Stage5(id), b INTEGER NULL REFERENCES Stage5(id))`,
	`CREATE TABLE Stage5 (id INTEGER PRIMARY KEY NOT NULL, a INTEGER NULL REFERENCES StageLeaf(id), b INTEGER NULL REFERENCES StageLeaf(id))`,
	`CREATE TABLE StageLeaf (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL)`,
}

func ptr[T any](v T) *T { return &v }

// newSQLiteOps opens an in-memory database holding the test tables
func newSQLiteOps(t *testing.T) (*Operations, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, ddl := range testDDL {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}
	return NewOperations(db, schema.NewRegistry()), db
}

func newMockOps(t *testing.T) (*Operations, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOperations(db, schema.NewRegistry()), mock
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
