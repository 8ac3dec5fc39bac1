package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderString(t *testing.T) {
	e := NewEngine()

	out, err := e.RenderString("Hello {{ name }}!", map[string]interface{}{"name": "Dana"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Dana!", out)
}

func TestRenderStringEmptySource(t *testing.T) {
	e := NewEngine()

	out, err := e.RenderString("", map[string]interface{}{"name": "Dana"})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestDefaultFilter(t *testing.T) {
	e := NewEngine()

	out, err := e.RenderString(`Hi {{ first_name | default: "there" }}`, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)

	out, err = e.RenderString(`Hi {{ first_name | default: "there" }}`, map[string]interface{}{"first_name": "Dana"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Dana", out)
}

func TestTruncateFilter(t *testing.T) {
	e := NewEngine()

	out, err := e.RenderString(`{{ msg | truncate: 10 }}`, map[string]interface{}{"msg": "a very long message indeed"})
	require.NoError(t, err)
	assert.Equal(t, "a very ...", out)
	assert.Len(t, out, 10)

	out, err = e.RenderString(`{{ msg | truncate: 50 }}`, map[string]interface{}{"msg": "short"})
	require.NoError(t, err)
	assert.Equal(t, "short", out)
}

func TestPhonePrettyFilter(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		in   string
		want string
	}{
		{"5551234567", "(555) 123-4567"},
		{"+15551234567", "(555) 123-4567"},
		{"555-123-4567", "(555) 123-4567"},
		{"12345", "12345"}, // not 10 digits, passed through
	}
	for _, tt := range tests {
		out, err := e.RenderString(`{{ phone | phone_pretty }}`, map[string]interface{}{"phone": tt.in})
		require.NoError(t, err)
		assert.Equal(t, tt.want, out)
	}
}

func TestRenderFullSet(t *testing.T) {
	e := NewEngine()
	e.Register("order.shipped", Set{
		Subject:  "Order {{ order_id }} shipped",
		HTMLBody: "<p>Order {{ order_id }} is on its way.</p>",
		TextBody: "Order {{ order_id }} is on its way.",
		SMSBody:  "Order {{ order_id }} shipped",
	})

	out, err := e.Render("order.shipped", map[string]interface{}{"order_id": "A-100"})
	require.NoError(t, err)
	assert.Equal(t, "Order A-100 shipped", out.Subject)
	assert.Contains(t, out.HTMLBody, "A-100")
	assert.Equal(t, "Order A-100 shipped", out.SMSBody)
}

func TestRenderUnknownEventType(t *testing.T) {
	e := NewEngine()

	_, err := e.Render("no.such.event", map[string]interface{}{})
	assert.Error(t, err)
}

func TestRenderParseErrorSurfaces(t *testing.T) {
	e := NewEngine()

	_, err := e.RenderString("{{ unclosed", map[string]interface{}{})
	assert.Error(t, err)
}

func TestRegisterReplaces(t *testing.T) {
	e := NewEngine()
	e.Register("x", Set{Subject: "one"})
	e.Register("x", Set{Subject: "two"})

	out, err := e.Render("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", out.Subject)
	assert.True(t, e.Registered("x"))
	assert.False(t, e.Registered("y"))
}
