// Package processor normalizes employees before they are written.
package processor

import (
	"context"
	"strings"

	"github.com/tigerroll/employee-import/internal/domain/model"
	"github.com/tigerroll/employee-import/pkg/batch/core/application/port"
)

// EmployeeProcessor trims surrounding whitespace from the text fields of an employee.
type EmployeeProcessor struct{}

var _ port.ItemProcessor[*model.Employee, *model.Employee] = (*EmployeeProcessor)(nil)

// NewEmployeeProcessor creates an EmployeeProcessor.
func NewEmployeeProcessor() *EmployeeProcessor {
	return &EmployeeProcessor{}
}

// Process implements port.ItemProcessor. The input is not modified.
func (p *EmployeeProcessor) Process(ctx context.Context, item *model.Employee) (*model.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := *item
	out.Name = strings.TrimSpace(item.Name)
	out.Title = strings.TrimSpace(item.Title)
	out.Department = strings.TrimSpace(item.Department)
	return &out, nil
}
