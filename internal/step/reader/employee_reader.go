// Package reader maps input records to employees.
package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tigerroll/employee-import/internal/domain/model"
	config "github.com/tigerroll/employee-import/pkg/batch/core/config"
	itemReader "github.com/tigerroll/employee-import/pkg/batch/component/step/reader"
)

// EmployeeFieldCount is the number of fields of an input record: id, name, title,
// department and age.
const EmployeeFieldCount = 5

// MapEmployee turns the fields of one record into an Employee. An empty id leaves
// the identifier to the store.
func MapEmployee(fields []string) (*model.Employee, error) {
	if len(fields) != EmployeeFieldCount {
		return nil, fmt.Errorf("expected %d fields (id,name,title,department,age), got %d", EmployeeFieldCount, len(fields))
	}

	emp := &model.Employee{
		Name:       fields[1],
		Title:      fields[2],
		Department: fields[3],
	}

	if raw := strings.TrimSpace(fields[0]); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("id %q is not an integer", raw)
		}
		emp.ID = &id
	}

	rawAge := strings.TrimSpace(fields[4])
	age, err := strconv.Atoi(rawAge)
	if err != nil {
		return nil, fmt.Errorf("age %q is not an integer", rawAge)
	}
	if age < 0 {
		return nil, fmt.Errorf("age %d is negative", age)
	}
	emp.Age = age
	return emp, nil
}

// NewEmployeeReader builds the flat file reader for the configured input.
func NewEmployeeReader(cfg *config.Config, source itemReader.Source) *itemReader.FlatFileItemReader[*model.Employee] {
	delimiter := ','
	if runes := []rune(cfg.Input.Delimiter); len(runes) == 1 {
		delimiter = runes[0]
	}
	return itemReader.NewFlatFileItemReader("employeeReader", itemReader.FlatFileItemReaderConfig{
		URI:       cfg.Input.Path,
		Delimiter: delimiter,
		HasHeader: cfg.Input.HasHeader,
	}, source, MapEmployee)
}
