package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/employee-import/internal/domain/model"
)

func TestEmployeeProcessor_TrimsTextFields(t *testing.T) {
	in := &model.Employee{Name: "  Ada ", Title: "Engineer\t", Department: " R&D", Age: 36}

	out, err := NewEmployeeProcessor().Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Ada", out.Name)
	assert.Equal(t, "Engineer", out.Title)
	assert.Equal(t, "R&D", out.Department)
	assert.Equal(t, 36, out.Age)
	assert.Equal(t, "  Ada ", in.Name)
}

func TestEmployeeProcessor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmployeeProcessor().Process(ctx, &model.Employee{})
	assert.ErrorIs(t, err, context.Canceled)
}
