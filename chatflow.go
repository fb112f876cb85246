package chatflow

import (
	"fmt"
	"os"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
)

// Flow is the editor state of one chatbot flow.
type Flow = flow.Flow

// Option configures a Flow.
type Option = flow.Option

// ValidationResult is the outcome of a structural validation: Valid, the
// user-facing Errors and the Issues they came from.
type ValidationResult = validator.Result

// Issue is a single structural problem.
type Issue = validator.Issue

// IssueKind classifies an Issue.
type IssueKind = validator.IssueKind

// ValidatorOption configures the structural validator.
type ValidatorOption = validator.Option

// ConditionEvaluator decides which branch a Condition node takes.
type ConditionEvaluator = runtime.ConditionEvaluator

// Flow options.
var (
	WithLogger             = flow.WithLogger
	WithLifecycleHooks     = flow.WithLifecycleHooks
	WithConditionEvaluator = flow.WithConditionEvaluator
	WithIDGenerator        = flow.WithIDGenerator
	WithValidatorOptions   = flow.WithValidatorOptions
)

// Validator options.
var (
	// WithContainer forces the Container rules on or off. By default they
	// apply to every flow whose version is not 1.x.
	WithContainer = validator.WithContainer

	// WithStrictBranching reports non-Condition nodes with several exits.
	WithStrictBranching = validator.WithStrictBranching
)

// DefaultEvaluator implements the built-in Condition operators.
var DefaultEvaluator ConditionEvaluator = runtime.DefaultEvaluator

// New creates a Flow holding the default graph: a Start node, the Questions
// container and a CTA.
func New(opts ...Option) *Flow {
	return flow.New(opts...)
}

// Parse creates a Flow from a serialized flow ({nodes, edges, version}).
func Parse(data []byte, opts ...Option) (*Flow, error) {
	g, err := domain.DecodeGraph(data)
	if err != nil {
		return nil, err
	}
	f := flow.FromGraph(g, opts...)
	f.Normalize()
	return f, nil
}

// Load reads a serialized flow from path.
func Load(path string, opts ...Option) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow: %w", err)
	}
	f, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Save exports f to path.
func Save(f *Flow, path string) error {
	data, err := f.Export()
	if err != nil {
		return fmt.Errorf("failed to export flow: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write flow: %w", err)
	}
	return nil
}

// Validate checks the structure of a serialized flow without building a Flow.
// The layout rules are applied first, as they would be on import.
func Validate(data []byte, opts ...ValidatorOption) (ValidationResult, error) {
	f, err := Parse(data, WithValidatorOptions(opts...))
	if err != nil {
		return ValidationResult{}, err
	}
	return f.Validate(), nil
}

// ValidateFile is Validate over the contents of path.
func ValidateFile(path string, opts ...ValidatorOption) (ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to read flow: %w", err)
	}
	return Validate(data, opts...)
}
