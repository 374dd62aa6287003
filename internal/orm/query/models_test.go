package query

import (
	"testing"

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
	ID    *int64
	Name  string
	Team  *Team
	Coach *Coach
}

type Coach struct {
	schema.Table
	ID     *int64
	Name   string
	Mentor *Coach
	Team   Team
}

type Roster struct {
	schema.Table
	ID       *int64
	Name     string
	Athletes []Athlete
}

type Score struct {
	Name  string
	Total int64
}

// Stage0 fans out into a wide reference graph: every stage points twice at
// the next and the last stage is shared by every path
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

func metaFor(t *testing.T, model any) *schema.ModelMeta {
	t.Helper()
	meta, err := schema.NewRegistry().MetadataFor(model)
	require.NoError(t, err)
	return meta
}
