package tasks

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/errandhub/backend/internal/apperr"
)

//go:embed schemas/create_task.json
var createTaskSchema string

const createTaskSchemaID = "https://errandhub.dev/schemas/create_task.json"

// Validator checks request bodies against the embedded JSON schemas.
type Validator struct {
	create *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	if err := c.AddResource(createTaskSchemaID, bytes.NewReader([]byte(createTaskSchema))); err != nil {
		return nil, fmt.Errorf("add create_task schema: %w", err)
	}
	s, err := c.Compile(createTaskSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compile create_task schema: %w", err)
	}
	return &Validator{create: s}, nil
}

// ValidateCreate hard-rejects a create-task body that does not match the schema.
func (v *Validator) ValidateCreate(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", apperr.ErrInvalidInput, err)
	}
	if err := v.create.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}
