// Package model holds the records imported by the employee job.
package model

import "fmt"

// Employee is one row of the input file and of the employee table.
type Employee struct {
	// ID is nil when the store should generate it.
	ID         *int64
	Name       string
	Title      string
	Department string
	Age        int
}

// String renders the employee for logs and the skipped-record export.
func (e Employee) String() string {
	id := "-"
	if e.ID != nil {
		id = fmt.Sprintf("%d", *e.ID)
	}
	return fmt.Sprintf("Employee{id=%s, name=%q, title=%q, department=%q, age=%d}", id, e.Name, e.Title, e.Department, e.Age)
}
