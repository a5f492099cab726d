package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

type recordingTx struct {
	queries []string
	args    []map[string]interface{}
	failOn  string
}

func (r *recordingTx) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	params := args[0].(map[string]interface{})
	if params["name"] == r.failOn {
		return 0, errors.New("duplicate key")
	}
	r.queries = append(r.queries, query)
	r.args = append(r.args, params)
	return 1, nil
}

func (r *recordingTx) Savepoint(name string) error           { return nil }
func (r *recordingTx) RollbackToSavepoint(name string) error { return nil }

func insertName(name string) (string, map[string]interface{}, error) {
	if name == "" {
		return "", nil, errors.New("empty name")
	}
	return "INSERT INTO people (name) VALUES (@name)", map[string]interface{}{"name": name}, nil
}

func TestSQLItemWriter_WritesOneStatementPerItem(t *testing.T) {
	w := NewSQLItemWriter("people", insertName)
	rec := &recordingTx{}

	require.NoError(t, w.Open(context.Background()))
	require.NoError(t, w.Write(context.Background(), rec, []string{"alice", "bob"}))
	require.NoError(t, w.Close(context.Background()))

	assert.Len(t, rec.queries, 2)
	assert.Equal(t, "bob", rec.args[1]["name"])
}

func TestSQLItemWriter_Errors(t *testing.T) {
	w := NewSQLItemWriter("people", insertName)

	err := w.Write(context.Background(), &recordingTx{failOn: "bob"}, []string{"alice", "bob"})
	assert.True(t, exception.IsWriteError(err))
	assert.Contains(t, err.Error(), "item 2")

	err = w.Write(context.Background(), &recordingTx{}, []string{""})
	assert.True(t, exception.IsWriteError(err))

	err = w.Write(context.Background(), nil, []string{"alice"})
	assert.True(t, exception.IsWriteError(err))

	assert.NoError(t, w.Write(context.Background(), nil, nil))
}
