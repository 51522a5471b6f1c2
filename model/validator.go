package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/apiguard/apierrors"
	"github.com/mark3labs/apiguard/events"
	"github.com/mark3labs/apiguard/schema"
)

// Validator checks values against models and reports through an emitter.
type Validator struct {
	emitter *events.Emitter
	logger  *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used for debug output. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewValidator returns a Validator publishing on emitter. A nil emitter gets
// a private one nobody listens to.
func NewValidator(emitter *events.Emitter, opts ...Option) *Validator {
	if emitter == nil {
		emitter = events.New()
	}
	v := &Validator{emitter: emitter, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Emitter returns the channel the validator publishes on.
func (v *Validator) Emitter() *events.Emitter { return v.emitter }

// Logger returns the validator's logger.
func (v *Validator) Logger() *slog.Logger { return v.logger }

// Validate decodes target against m.
//
// Events fire in the order before-validation, then extra-keys-detected (strict
// mode only), then validation-error or validation-success, then
// after-validation; after-validation is emitted even when an error is returned.
//
// On success the decoded value is returned, with undeclared fields stripped
// in strict mode. On failure without ThrowErrors the unmodified target is
// returned with a nil error; with ThrowErrors the first failure is returned
// as *apierrors.ValidationError or *apierrors.ExtraFieldsError.
func (v *Validator) Validate(ctx context.Context, m *Model, target any, opts Options) (any, error) {
	op := m.Operation()
	v.emit(events.Event{Kind: events.BeforeValidation, Model: m.Name, Operation: op})

	result, decodeErr := m.Schema.Decode(target)
	valid := decodeErr == nil

	if opts.StrictTypes {
		if !valid {
			if opts.Debug {
				v.logger.WarnContext(ctx, "extra fields check skipped due to failed validation", "model", m.Name, "operation", op)
			}
		} else if filtered, extraErr := v.checkExtraKeys(ctx, m, op, result, target, opts); extraErr != nil {
			v.emit(events.Event{Kind: events.AfterValidation, Model: m.Name, Operation: op})
			return nil, extraErr
		} else {
			result = filtered
		}
	}

	if !valid {
		if err := v.reportInvalid(ctx, m, op, target, decodeErr, opts); err != nil {
			v.emit(events.Event{Kind: events.AfterValidation, Model: m.Name, Operation: op})
			return nil, err
		}
	} else {
		if opts.Debug {
			v.logger.InfoContext(ctx, fmt.Sprintf("SUCCESS - [%s]: Target is valid!", strings.ToUpper(m.Name)),
				"operation", op, "target", target)
		}
		v.emit(events.Event{Kind: events.ValidationSuccess, Model: m.Name, Operation: op})
	}

	v.emit(events.Event{Kind: events.AfterValidation, Model: m.Name, Operation: op})

	if valid {
		return result, nil
	}
	return target, nil
}

// Assert reports whether target satisfies m, treating every failure
// (including extra fields when strict) as false. It never returns the error.
func (v *Validator) Assert(ctx context.Context, m *Model, target any, strict, debug bool) bool {
	_, err := v.Validate(ctx, m, target, Options{ThrowErrors: true, StrictTypes: strict, Debug: debug})
	return err == nil
}

func (v *Validator) checkExtraKeys(ctx context.Context, m *Model, op string, decoded, target any, opts Options) (any, error) {
	if _, structLike := m.Schema.DeclaredFields(); !structLike {
		return decoded, nil
	}
	filtered, err := schema.Exact(m.Schema, target)
	if err != nil {
		// Exact decoding only drops keys, so this cannot fail after Decode succeeded.
		return decoded, nil
	}
	if schema.Stringify(filtered) == schema.Stringify(decoded) {
		return filtered, nil
	}

	diff := schema.AddedFields(filtered, decoded)
	msg := fmt.Sprintf("Detected extra properties in model %q%s: %s",
		strings.ToUpper(m.Name), operationSuffix(op), schema.StringifyIndent(diff))
	extraErr := &apierrors.ExtraFieldsError{Model: m.Name, Operation: op, Diff: diff, Message: msg}

	v.emit(events.Event{Kind: events.ExtraKeysDetected, Model: m.Name, Operation: op, Err: extraErr, Message: msg})

	if opts.ThrowErrors {
		return nil, extraErr
	}
	if opts.Debug {
		v.logger.ErrorContext(ctx, msg, "model", m.Name, "operation", op)
	}
	return filtered, nil
}

func (v *Validator) reportInvalid(ctx context.Context, m *Model, op string, target any, decodeErr error, opts Options) error {
	issues, ok := decodeErr.(schema.Errors)
	if !ok {
		issues = schema.Errors{{Expected: m.Schema.Name(), Actual: target, Reason: decodeErr.Error()}}
	}
	serialized := schema.StringifyIndent(target)

	for _, issue := range issues {
		msg := fmt.Sprintf("ERROR - [%s] VALIDATION FAILED%s: %s at: \n %s",
			strings.ToUpper(m.Name), operationSuffix(op), issue.Message(), serialized)
		verr := &apierrors.ValidationError{
			Model:     m.Name,
			Operation: op,
			Path:      issue.Path,
			Expected:  issue.Expected,
			Actual:    issue.Actual,
			Message:   msg,
		}

		v.emit(events.Event{Kind: events.ValidationError, Model: m.Name, Operation: op, Err: verr, Message: msg})

		if opts.Debug {
			v.logger.ErrorContext(ctx, msg, "model", m.Name, "operation", op, "path", issue.Path)
		}
		if opts.ThrowErrors {
			return verr
		}
	}
	return nil
}

func (v *Validator) emit(ev events.Event) {
	v.emitter.Emit(ev)
}

func operationSuffix(op string) string {
	if op == "" {
		return ""
	}
	return " (operation " + op + ")"
}
