package schema

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/smartmessage/sm/header"
	"github.com/smartmessage/sm/serializer"
)

// fakeTransport is a minimal transport.Transport double recording what it
// was asked to publish, for exercising Message.Publish's fan-out without
// pulling in the loopback transport's encode/decode machinery.
type fakeTransport struct {
	published []map[string]interface{}
	err       error
}

func (f *fakeTransport) Publish(h *header.Header, fields map[string]interface{}) error {
	f.published = append(f.published, fields)
	return f.err
}
func (f *fakeTransport) Receive(payload []byte) error      { return nil }
func (f *fakeTransport) Serializer() serializer.Serializer { return nil }
func (f *fakeTransport) Connected() bool                   { return true }
func (f *fakeTransport) Connect() error                    { return nil }
func (f *fakeTransport) Disconnect() error                 { return nil }

var skuPattern = regexp.MustCompile(`^[A-Z]{3}-\d+$`)

func orderDescriptor() *Descriptor {
	return New("OrderMessage",
		WithVersion(2),
		WithDefaultFrom("order-service"),
		WithProperty(Property{
			Name:     "order_id",
			Required: true,
			Aliases:  []string{"orderId"},
		}),
		WithProperty(Property{
			Name:      "status",
			Default:   DefaultValue("pending"),
			Validator: SetValidator{Values: []interface{}{"pending", "shipped", "cancelled"}},
		}),
		WithProperty(Property{
			Name:      "amount",
			Required:  true,
			Validator: RangeValidator{Min: 0, Max: 1_000_000},
		}),
		WithProperty(Property{
			Name:      "sku",
			Validator: PatternValidator{Pattern: skuPattern},
		}),
	)
}

func TestNewMessageAppliesDefaultWhenOmitted(t *testing.T) {
	// An omitted optional property with a declared default takes that
	// default.
	d := orderDescriptor()
	m, err := d.NewMessage("", "", "", map[string]interface{}{
		"order_id": "ORD-1",
		"amount":   10.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status, ok := m.Get("status")
	if !ok || status != "pending" {
		t.Fatalf("expected default status pending, got %#v (ok=%v)", status, ok)
	}
}

func TestNewMessageMissingRequiredPropertyErrors(t *testing.T) {
	// A required property with no default, omitted at construction, must
	// raise MissingRequiredPropertyError.
	d := orderDescriptor()
	_, err := d.NewMessage("", "", "", map[string]interface{}{
		"order_id": "ORD-1",
	})
	if err == nil {
		t.Fatal("expected MissingRequiredPropertyError")
	}
	if _, ok := err.(*MissingRequiredPropertyError); !ok {
		t.Fatalf("expected *MissingRequiredPropertyError, got %T", err)
	}
}

func TestNewMessageResolvesAlias(t *testing.T) {
	d := orderDescriptor()
	m, err := d.NewMessage("", "", "", map[string]interface{}{
		"orderId": "ORD-2",
		"amount":  5.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := m.Get("order_id")
	if !ok || v != "ORD-2" {
		t.Fatalf("expected alias to resolve to canonical order_id, got %#v", v)
	}
}

func TestNewMessageIgnoresUnknownKeys(t *testing.T) {
	d := orderDescriptor()
	m, err := d.NewMessage("", "", "", map[string]interface{}{
		"order_id": "ORD-3",
		"amount":   1.0,
		"bogus":    "value",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.Get("bogus"); ok {
		t.Fatal("expected unknown key to be silently ignored")
	}
}

func TestStrictPropertiesRejectsUnknownKeys(t *testing.T) {
	d := New("StrictMessage",
		WithStrictProperties(),
		WithProperty(Property{Name: "known"}),
	)
	_, err := d.NewMessage("", "", "", map[string]interface{}{
		"known": 1,
		"bogus": 2,
	})
	ue, ok := err.(*UnknownPropertyError)
	if !ok {
		t.Fatalf("expected *UnknownPropertyError, got %T (%v)", err, err)
	}
	if ue.Property != "bogus" {
		t.Fatalf("expected the offending key in the error, got %q", ue.Property)
	}
}

func TestReservedPropertyNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a reserved-prefix property name")
		}
	}()
	New("BadMessage", WithProperty(Property{Name: "_sm_internal"}))
}

func TestNewMessageAppliesTransform(t *testing.T) {
	d := New("GreetingMessage",
		WithProperty(Property{
			Name:      "name",
			Required:  true,
			Transform: func(v interface{}) interface{} { return strings.ToUpper(v.(string)) },
		}),
	)
	m, err := d.NewMessage("", "", "", map[string]interface{}{"name": "ada"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := m.Get("name")
	if v != "ADA" {
		t.Fatalf("expected transform to upcase name, got %#v", v)
	}
}

func TestTransformAppliesToProducedDefault(t *testing.T) {
	// When a property with both a producer default and a transformer is
	// omitted, the stored value is the transform of the produced default.
	d := New("TagMessage",
		WithProperty(Property{
			Name:      "tag",
			Default:   DefaultFunc(func() interface{} { return "draft" }),
			Transform: func(v interface{}) interface{} { return strings.ToUpper(v.(string)) },
		}),
	)
	m, err := d.NewMessage("", "", "", map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ := m.Get("tag")
	if v != "DRAFT" {
		t.Fatalf("expected transform of produced default, got %#v", v)
	}
}

func TestValidateAccumulatesAllFailures(t *testing.T) {
	d := orderDescriptor()
	m, err := d.NewMessage("", "", "", map[string]interface{}{
		"order_id": "ORD-4",
		"amount":   -5.0,
	})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	m.Set("status", "unknown-state")

	verr := m.Validate()
	if verr == nil {
		t.Fatal("expected validation error")
	}
	ve, ok := verr.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", verr)
	}
	if len(ve.Failures) != 2 {
		t.Fatalf("expected 2 accumulated failures (amount, status), got %d: %+v", len(ve.Failures), ve.Failures)
	}
}

func TestValidMessagePassesValidation(t *testing.T) {
	d := orderDescriptor()
	m, err := d.NewMessage("", "", "", map[string]interface{}{
		"order_id": "ORD-5",
		"amount":   42.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Valid() {
		t.Fatalf("expected message to be valid, got: %v", m.Validate())
	}
}

func TestNamedMethodValidator(t *testing.T) {
	d := New("ApprovalMessage",
		WithProperty(Property{
			Name:      "amount",
			Required:  true,
			Validator: NamedMethodValidator{Name: "within_limit"},
		}),
		WithMethod("within_limit", func(m *Message) bool {
			v, _ := m.Get("amount")
			f, ok := v.(float64)
			return ok && f <= 100
		}),
	)

	ok, err := d.NewMessage("", "", "", map[string]interface{}{"amount": 50.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok.Valid() {
		t.Fatalf("expected valid: %v", ok.Validate())
	}

	bad, err := d.NewMessage("", "", "", map[string]interface{}{"amount": 500.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bad.Valid() {
		t.Fatal("expected invalid for amount over limit")
	}
}

func TestDefaultFuncInvokedLazilyPerConstruction(t *testing.T) {
	calls := 0
	d := New("SequenceMessage",
		WithProperty(Property{
			Name: "seq",
			Default: DefaultFunc(func() interface{} {
				calls++
				return calls
			}),
		}),
	)

	first, _ := d.NewMessage("", "", "", map[string]interface{}{})
	second, _ := d.NewMessage("", "", "", map[string]interface{}{})

	fv, _ := first.Get("seq")
	sv, _ := second.Get("seq")
	if fv == sv {
		t.Fatalf("expected distinct lazily-produced defaults, got %#v and %#v", fv, sv)
	}
	if calls != 2 {
		t.Fatalf("expected producer invoked once per construction, called %d times", calls)
	}
}

func TestDescriptorIntrospection(t *testing.T) {
	d := New("OrderMessage",
		WithDescription("an order placed by a customer"),
		WithProperty(Property{Name: "order_id", Required: true, Description: "unique order identifier"}),
		WithProperty(Property{Name: "amount", Required: true}),
	)

	if d.Description() != "an order placed by a customer" {
		t.Fatalf("unexpected description: %q", d.Description())
	}
	fields := d.Fields()
	if len(fields) != 2 || fields[0] != "amount" || fields[1] != "order_id" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	descs := d.PropertyDescriptions()
	if descs["order_id"] != "unique order identifier" {
		t.Fatalf("unexpected property description: %v", descs)
	}
}

func TestDefaultDescriptionWhenUndeclared(t *testing.T) {
	d := New("PingMessage")
	if !strings.Contains(d.Description(), "PingMessage") {
		t.Fatalf("expected default description to name the class, got %q", d.Description())
	}
}

func TestHeaderStampedWithClassAndVersion(t *testing.T) {
	d := orderDescriptor()
	m, err := d.NewMessage("", "dest-service", "", map[string]interface{}{
		"order_id": "ORD-6",
		"amount":   1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := m.Header()
	if h.MessageClass != "OrderMessage" || h.Version != 2 {
		t.Fatalf("unexpected header stamping: %+v", h)
	}
	if h.From != "order-service" {
		t.Fatalf("expected default from to apply, got %q", h.From)
	}
	if h.To == nil || *h.To != "dest-service" {
		t.Fatalf("expected explicit to to override default, got %v", h.To)
	}
}

func TestPublishWithNoTransportErrors(t *testing.T) {
	d := orderDescriptor()
	m, err := d.NewMessage("", "", "", map[string]interface{}{
		"order_id": "ORD-7",
		"amount":   1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = m.Publish()
	if _, ok := err.(*MissingTransportError); !ok {
		t.Fatalf("expected *MissingTransportError, got %T (%v)", err, err)
	}
}

func TestPublishFanOutBestEffort(t *testing.T) {
	ok1 := &fakeTransport{}
	failing := &fakeTransport{err: errors.New("boom")}
	ok2 := &fakeTransport{}

	d := New("OrderMessage",
		WithDefaultFrom("order-service"),
		WithTransport(ok1, failing, ok2),
		WithProperty(Property{Name: "order_id", Required: true}),
	)
	m, err := d.NewMessage("", "", "", map[string]interface{}{"order_id": "ORD-8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = m.Publish()
	if err == nil {
		t.Fatal("expected the failing transport's error to surface")
	}
	if len(ok1.published) != 1 || len(ok2.published) != 1 {
		t.Fatalf("expected both healthy transports to still receive the publish, got %d and %d",
			len(ok1.published), len(ok2.published))
	}
}

func TestPublishValidatesBeforeTransport(t *testing.T) {
	tr := &fakeTransport{}
	d := New("StrictMessage",
		WithDefaultFrom("svc"),
		WithTransport(tr),
		WithProperty(Property{
			Name:      "amount",
			Required:  true,
			Validator: RangeValidator{Min: 0, Max: 10},
		}),
	)
	m, err := d.NewMessage("", "", "", map[string]interface{}{"amount": 999.0})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	if err := m.Publish(); err == nil {
		t.Fatal("expected validation failure to block publish")
	}
	if len(tr.published) != 0 {
		t.Fatal("expected transport not to be invoked when validation fails")
	}
}
