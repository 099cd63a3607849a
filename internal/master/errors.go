package master

import "fmt"

// InvalidSchemaError is spec §7's InvalidSchema kind: the Master refuses
// to launch because the dependency analyzer found a duplicate service
// name, a cycle in the requires graph, or both.
type InvalidSchemaError struct {
	Duplicate bool
	Circular  bool
}

func (e *InvalidSchemaError) Error() string {
	return fmt.Sprintf("master: invalid schema: duplicate=%v circular=%v", e.Duplicate, e.Circular)
}
