package crud

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tuplesaver/tuplesaver/internal/orm/schema"
)

// statements holds the write statements of one table model
type statements struct {
	insert string
	update string
	delete string
}

// statementCache builds write statements once per model
type statementCache struct {
	byModel sync.Map // *schema.ModelMeta -> *statements
}

func newStatementCache() *statementCache {
	return &statementCache{}
}

func (c *statementCache) get(meta *schema.ModelMeta) *statements {
	if s, ok := c.byModel.Load(meta); ok {
		return s.(*statements)
	}
	s, _ := c.byModel.LoadOrStore(meta, buildStatements(meta))
	return s.(*statements)
}

// buildStatements renders INSERT, UPDATE and DELETE for meta. Columns are
// bound in declaration order with the id first; UPDATE binds the id last.
func buildStatements(meta *schema.ModelMeta) *statements {
	cols := meta.ColumnNames()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	sets := make([]string, 0, len(cols))
	for _, c := range cols[1:] {
		sets = append(sets, c+" = ?")
	}
	if len(sets) == 0 {
		sets = append(sets, schema.IDField+" = ?")
	}

	return &statements{
		insert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", meta.TableName, strings.Join(cols, ", "), marks),
		update: fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", meta.TableName, strings.Join(sets, ", "), schema.IDField),
		delete: fmt.Sprintf("DELETE FROM %s WHERE %s = ?", meta.TableName, schema.IDField),
	}
}
