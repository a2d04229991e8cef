// Package schema implements the declarative message-class schema: a
// property system (required/default/validate/transform/alias) plus
// class-level metadata (version, description, default addressing,
// introspection). A message class is declared once as an immutable
// Descriptor built from functional options; every instance of the class
// shares it.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smartmessage/sm/header"
	"github.com/smartmessage/sm/logging"
	"github.com/smartmessage/sm/serializer"
	"github.com/smartmessage/sm/transport"
)

// Default is either a literal value or a zero-arg producer invoked lazily
// when the property is omitted at construction.
type Default struct {
	value    interface{}
	producer func() interface{}
	has      bool
}

// DefaultValue wraps a literal default.
func DefaultValue(v interface{}) Default { return Default{value: v, has: true} }

// DefaultFunc wraps a zero-arg producer, invoked lazily on each
// construction that omits the property.
func DefaultFunc(f func() interface{}) Default { return Default{producer: f, has: true} }

func (d Default) resolve() interface{} {
	if d.producer != nil {
		return d.producer()
	}
	return d.value
}

// Property is one declared field of a message class.
type Property struct {
	Name        string
	Default     Default
	Required    bool
	Validator   Validator
	Transform   func(value interface{}) interface{}
	Aliases     []string
	Description string
}

// Descriptor is the immutable, class-scoped schema built once per message
// class. All instances of the class share the same Descriptor.
type Descriptor struct {
	className      string
	version        int
	description    string
	defaultFrom    string
	defaultTo      string
	defaultReplyTo string
	ignoreUnknown  bool

	properties  []Property
	byName      map[string]*Property
	aliasToName map[string]string
	methods     map[string]func(*Message) bool
	transports  []transport.Transport
	logger      *logging.Logger
}

// Option configures a Descriptor at build time.
type Option func(*Descriptor)

// WithVersion declares the schema version (default 1).
func WithVersion(n int) Option { return func(d *Descriptor) { d.version = n } }

// WithDescription sets the class-level description string.
func WithDescription(s string) Option { return func(d *Descriptor) { d.description = s } }

// WithDefaultFrom sets the default header `from` address.
func WithDefaultFrom(s string) Option { return func(d *Descriptor) { d.defaultFrom = s } }

// WithDefaultTo sets the default header `to` address.
func WithDefaultTo(s string) Option { return func(d *Descriptor) { d.defaultTo = s } }

// WithDefaultReplyTo sets the default header `reply_to` address.
func WithDefaultReplyTo(s string) Option { return func(d *Descriptor) { d.defaultReplyTo = s } }

// WithProperty declares one property.
func WithProperty(p Property) Option {
	return func(d *Descriptor) {
		d.properties = append(d.properties, p)
	}
}

// WithMethod registers a named validator method: a predicate resolved by
// name on the message instance at validation time, rather than inline.
func WithMethod(name string, fn func(*Message) bool) Option {
	return func(d *Descriptor) { d.methods[name] = fn }
}

// WithTransport binds one or more transports to a class, for
// multi-transport fan-out on Publish. Repeated calls append rather than
// replace.
func WithTransport(t ...transport.Transport) Option {
	return func(d *Descriptor) { d.transports = append(d.transports, t...) }
}

// WithStrictProperties makes construction reject undeclared input keys
// instead of silently ignoring them (the default policy).
func WithStrictProperties() Option {
	return func(d *Descriptor) { d.ignoreUnknown = false }
}

// WithLogger binds the logger this class's instances log through on
// publish (logging.Default() if never bound).
func WithLogger(l *logging.Logger) Option {
	return func(d *Descriptor) { d.logger = l }
}

// New builds an immutable Descriptor for className.
func New(className string, opts ...Option) *Descriptor {
	d := &Descriptor{
		className:     className,
		version:       1,
		ignoreUnknown: true,
		byName:        make(map[string]*Property),
		aliasToName:   make(map[string]string),
		methods:       make(map[string]func(*Message) bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.properties {
		p := &d.properties[i]
		if strings.HasPrefix(p.Name, serializer.ReservedPrefix) {
			panic(fmt.Sprintf("schema: property name %q uses the reserved %q prefix", p.Name, serializer.ReservedPrefix))
		}
		d.byName[p.Name] = p
		for _, alias := range p.Aliases {
			d.aliasToName[alias] = p.Name
		}
	}
	if d.description == "" {
		d.description = fmt.Sprintf("%s is a smartmessage message class", className)
	}
	if d.logger == nil {
		d.logger = logging.Default()
	}
	return d
}

// ClassName returns the declared message class name.
func (d *Descriptor) ClassName() string { return d.className }

// Version returns the declared schema version.
func (d *Descriptor) Version() int { return d.version }

// Description returns the class-level description.
func (d *Descriptor) Description() string { return d.description }

// Transports returns the transports bound to this class via WithTransport.
func (d *Descriptor) Transports() []transport.Transport { return d.transports }

// Fields returns the set of declared property names, excluding any
// reserved (_sm_-prefixed) names.
func (d *Descriptor) Fields() []string {
	out := make([]string, 0, len(d.properties))
	for _, p := range d.properties {
		if strings.HasPrefix(p.Name, serializer.ReservedPrefix) {
			continue
		}
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

// PropertyDescriptions returns property -> description for every property
// that declared one.
func (d *Descriptor) PropertyDescriptions() map[string]string {
	out := make(map[string]string)
	for _, p := range d.properties {
		if p.Description != "" {
			out[p.Name] = p.Description
		}
	}
	return out
}

// MissingRequiredPropertyError is raised when a required property has no
// value after alias+default resolution.
type MissingRequiredPropertyError struct {
	ClassName string
	Property  string
}

func (e *MissingRequiredPropertyError) Error() string {
	return fmt.Sprintf("%s: required property %q is missing", e.ClassName, e.Property)
}

// UnknownPropertyError is raised at construction, only under
// WithStrictProperties, when the input carries a key no declaration or
// alias covers.
type UnknownPropertyError struct {
	ClassName string
	Property  string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("%s: unknown property %q", e.ClassName, e.Property)
}

// ValidationFailure is one failing property from an explicit Validate call.
type ValidationFailure struct {
	Property string
	Message  string
}

// ValidationError accumulates every failing property from one Validate
// call.
type ValidationError struct {
	ClassName string
	Failures  []ValidationFailure
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %s", f.Property, f.Message)
	}
	return fmt.Sprintf("%s: validation failed: %s", e.ClassName, strings.Join(parts, "; "))
}

// MissingTransportError is raised by Publish when the message's class has
// no transport bound.
type MissingTransportError struct {
	ClassName string
}

func (e *MissingTransportError) Error() string {
	return fmt.Sprintf("%s: publish called with no transport bound", e.ClassName)
}

// Message is one instance of a declared message class: a header plus its
// property values. Property access is indifferent to how the value was
// supplied (alias or canonical name); internally every value is stored
// under its canonical property name.
type Message struct {
	descriptor *Descriptor
	header     *header.Header
	values     map[string]interface{}
}

// Header returns the message's envelope.
func (m *Message) Header() *header.Header { return m.header }

// Descriptor returns the class-level schema this instance was built from.
func (m *Message) Descriptor() *Descriptor { return m.descriptor }

// Get returns the value stored for name (canonical or alias), and whether
// it was present.
func (m *Message) Get(name string) (interface{}, bool) {
	canonical := m.descriptor.canonicalName(name)
	v, ok := m.values[canonical]
	return v, ok
}

// Set stores a value for name (canonical or alias), bypassing the
// construction pipeline (no transform runs). It changes property values
// only, never the header's addressing.
func (m *Message) Set(name string, value interface{}) {
	canonical := m.descriptor.canonicalName(name)
	m.values[canonical] = value
}

// Values returns a snapshot copy of every stored property value, keyed by
// canonical name.
func (m *Message) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func (d *Descriptor) canonicalName(name string) string {
	if _, ok := d.byName[name]; ok {
		return name
	}
	if canonical, ok := d.aliasToName[name]; ok {
		return canonical
	}
	return name
}

// NewMessage constructs a Message from an input mapping keyed by external or
// internal property names, resolving each declared property in order:
// alias -> default -> required check -> transform. Validators do not run
// here; call Validate explicitly. Unknown keys are silently ignored unless
// the class was declared with WithStrictProperties.
func (d *Descriptor) NewMessage(from, to, replyTo string, input map[string]interface{}) (*Message, error) {
	if from == "" {
		from = d.defaultFrom
	}
	if to == "" {
		to = d.defaultTo
	}
	if replyTo == "" {
		replyTo = d.defaultReplyTo
	}

	h := header.New(d.className, d.version, from, to, replyTo)
	m := &Message{descriptor: d, header: h, values: make(map[string]interface{}, len(d.properties))}

	canonicalInput := make(map[string]interface{}, len(input))
	for k, v := range input {
		canonical := d.canonicalName(k)
		if !d.ignoreUnknown {
			if _, ok := d.byName[canonical]; !ok {
				return nil, &UnknownPropertyError{ClassName: d.className, Property: k}
			}
		}
		canonicalInput[canonical] = v
	}

	var missing []string
	for i := range d.properties {
		p := &d.properties[i]

		value, present := canonicalInput[p.Name]
		if !present && p.Default.has {
			value = p.Default.resolve()
			present = true
		}

		if !present {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}

		if p.Transform != nil {
			value = p.Transform(value)
		}

		m.values[p.Name] = value
	}

	if len(missing) > 0 {
		return nil, &MissingRequiredPropertyError{ClassName: d.className, Property: missing[0]}
	}

	return m, nil
}

// FromWire reconstructs a Message from a header already decoded off the
// wire (so it keeps the sender's UUID and stamps) together with its
// decoded property fields. It runs the same alias -> default -> transform
// pipeline as NewMessage but skips the required-property check: a message
// that made it onto the wire was already validated at publish time, and a
// receiver that is missing a field the sender omitted should not fail
// construction, only validation if it re-checks. Used by the dispatcher's
// unified-style handler invocation.
func (d *Descriptor) FromWire(h *header.Header, fields map[string]interface{}) *Message {
	m := &Message{descriptor: d, header: h, values: make(map[string]interface{}, len(d.properties))}

	canonicalInput := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		canonicalInput[d.canonicalName(k)] = v
	}

	for i := range d.properties {
		p := &d.properties[i]

		value, present := canonicalInput[p.Name]
		if !present && p.Default.has {
			value = p.Default.resolve()
			present = true
		}
		if !present {
			continue
		}
		if p.Transform != nil {
			value = p.Transform(value)
		}
		m.values[p.Name] = value
	}

	return m
}

// Validate runs the declared validators and accumulates failures into a
// single *ValidationError; nil means every validator that ran passed. An
// optional property that holds no value is not validated.
func (m *Message) Validate() error {
	var failures []ValidationFailure
	for i := range m.descriptor.properties {
		p := &m.descriptor.properties[i]
		if p.Validator == nil {
			continue
		}
		value, present := m.values[p.Name]
		if !present && !p.Required {
			continue
		}
		if !p.Validator.Validate(value, m) {
			failures = append(failures, ValidationFailure{
				Property: p.Name,
				Message:  "failed validation",
			})
		}
	}
	if len(failures) > 0 {
		return &ValidationError{ClassName: m.descriptor.className, Failures: failures}
	}
	return nil
}

// Valid reports Validate's result as a boolean, without raising.
func (m *Message) Valid() bool {
	return m.Validate() == nil
}

// Publish validates the message, then hands it to every transport bound
// to this message's class. Multi-transport fan-out is best-effort: every
// bound transport is attempted and the failures (if any) are joined into
// one error rather than aborting after the first transport fails.
//
// Publish fails synchronously only for (a) validation failures and (b) a
// transport's own synchronous error: both arrive here, since a
// transport's Publish call is synchronous by contract.
func (m *Message) Publish() error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := m.header.Validate(); err != nil {
		return err
	}
	transports := m.descriptor.transports
	if len(transports) == 0 {
		return &MissingTransportError{ClassName: m.descriptor.className}
	}

	fields := m.Values()
	var errs []error
	for _, t := range transports {
		if err := t.Publish(m.header, fields); err != nil {
			m.descriptor.logger.Error("publish: transport failed",
				"message_class", m.descriptor.className, "uuid", m.header.UUID,
				"transport", fmt.Sprintf("%T", t), "error", err)
			errs = append(errs, fmt.Errorf("transport %T: %w", t, err))
		}
	}
	return errors.Join(errs...)
}
