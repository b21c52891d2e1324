package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/opgraph/internal/port"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern   = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	nodeIDPattern   = regexp.MustCompile(`^[a-z0-9_-]+$`)
	opcodePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	endpointPattern = regexp.MustCompile(`^([a-z0-9_-]+)\.(\d+)$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("node_id", func(fl validator.FieldLevel) bool {
			return nodeIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("opcode", func(fl validator.FieldLevel) bool {
			return opcodePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
			_, _, err := splitEndpoint(fl.Field().String())
			return err == nil
		})

		validateInst = v
	})

	return validateInst
}

// Validate performs schema and cross-field validation on the definition.
func Validate(def *Definition) error {
	if def == nil {
		return opgrapherrors.NewValidationError("definition", "definition is nil", nil)
	}

	if err := validatorInstance().Struct(def); err != nil {
		return convertValidationError(err)
	}

	index := make(map[string]int, len(def.Nodes))
	for i, n := range def.Nodes {
		if prev, exists := index[n.ID]; exists {
			return opgrapherrors.NewValidationError(fieldFor("nodes", i, "id"), fmt.Sprintf("duplicate node id %q (first declared at nodes[%d])", n.ID, prev), nil)
		}
		index[n.ID] = i
	}

	for i, e := range def.Edges {
		for _, end := range [2][2]string{{"from", e.From}, {"to", e.To}} {
			id, _, err := splitEndpoint(end[1])
			if err != nil {
				return opgrapherrors.NewValidationError(fieldFor("edges", i, end[0]), err.Error(), err)
			}
			if _, ok := index[id]; !ok {
				return opgrapherrors.NewValidationError(fieldFor("edges", i, end[0]), fmt.Sprintf("references unknown node %q", id), nil)
			}
		}
	}

	return nil
}

// splitEndpoint parses "<node>.<port>".
func splitEndpoint(ref string) (string, port.Slot, error) {
	m := endpointPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", 0, fmt.Errorf("endpoint %q must look like <node>.<port>", ref)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n >= port.MaxPorts {
		return "", 0, fmt.Errorf("endpoint %q: port must be below %d", ref, port.MaxPorts)
	}
	return m[1], port.Slot(n), nil
}

// convertValidationError normalizes validator errors into opgraph validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return opgrapherrors.NewValidationError(field, msg, err)
	}

	return opgrapherrors.NewValidationError("definition", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = strings.ToLower(part)
	}
	return strings.Join(parts, ".")
}

func fieldFor(list string, index int, field string) string {
	return fmt.Sprintf("%s[%d].%s", list, index, field)
}
