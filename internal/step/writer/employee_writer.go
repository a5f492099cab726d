// Package writer persists employees into the employee table.
package writer

import (
	"github.com/tigerroll/employee-import/internal/domain/model"
	itemWriter "github.com/tigerroll/employee-import/pkg/batch/component/step/writer"
)

const (
	insertEmployee = "INSERT INTO employee (name, title, department, age) VALUES (@name, @title, @department, @age)"

	insertEmployeeWithID = "INSERT INTO employee (id, name, title, department, age) VALUES (@id, @name, @title, @department, @age)"
)

// EmployeeStatement maps an employee to its insert. Employees without an id leave
// the id column out so the store generates it.
func EmployeeStatement(emp *model.Employee) (string, map[string]interface{}, error) {
	args := map[string]interface{}{
		"name":       emp.Name,
		"title":      emp.Title,
		"department": emp.Department,
		"age":        emp.Age,
	}
	if emp.ID == nil {
		return insertEmployee, args, nil
	}
	args["id"] = *emp.ID
	return insertEmployeeWithID, args, nil
}

// NewEmployeeWriter creates the writer for the employee table.
func NewEmployeeWriter() *itemWriter.SQLItemWriter[*model.Employee] {
	return itemWriter.NewSQLItemWriter[*model.Employee]("employeeWriter", EmployeeStatement)
}
