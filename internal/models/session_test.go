package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionKindValid(t *testing.T) {
	assert.True(t, SessionKindDriver.Valid())
	assert.True(t, SessionKindOperator.Valid())
	assert.True(t, SessionKindPartner.Valid())
	assert.False(t, SessionKind("ADMIN").Valid())
	assert.False(t, SessionKind("").Valid())
}

func TestSessionContextAccessors(t *testing.T) {
	session := &Session{
		Kind:    SessionKindOperator,
		Payload: json.RawMessage(`{"network_id":"n1","location_id":"l1","location_name":"Main St","location_code":"MS01","wash_mode":"FULL"}`),
	}

	ctx, err := session.OperatorContext()
	require.NoError(t, err)
	assert.Equal(t, "l1", ctx.LocationID)
	assert.Equal(t, "Main St", ctx.LocationName)
	assert.Nil(t, ctx.OperatorID)

	// Wrong-kind accessors fail closed regardless of payload shape.
	_, err = session.DriverContext()
	assert.Error(t, err)
	_, err = session.PartnerContext()
	assert.Error(t, err)
}

func TestSessionContextAccessorMalformedPayload(t *testing.T) {
	session := &Session{Kind: SessionKindDriver, Payload: json.RawMessage(`not json`)}
	_, err := session.DriverContext()
	assert.Error(t, err)
}

func TestMergePayloadShallow(t *testing.T) {
	stored := json.RawMessage(`{"location_name":"Old","wash_mode":"SELF","operator_id":"op1"}`)
	partial := json.RawMessage(`{"location_name":"New","location_code":"NC01"}`)

	merged, err := MergePayload(stored, partial)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(merged, &got))
	assert.Equal(t, "New", got["location_name"])
	assert.Equal(t, "NC01", got["location_code"])
	assert.Equal(t, "SELF", got["wash_mode"])
	assert.Equal(t, "op1", got["operator_id"])
}

func TestMergePayloadReplacesNestedObjects(t *testing.T) {
	stored := json.RawMessage(`{"prefs":{"lang":"en","theme":"dark"}}`)
	partial := json.RawMessage(`{"prefs":{"lang":"ru"}}`)

	merged, err := MergePayload(stored, partial)
	require.NoError(t, err)

	var got map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(merged, &got))
	assert.Equal(t, "ru", got["prefs"]["lang"])
	_, hasTheme := got["prefs"]["theme"]
	assert.False(t, hasTheme)
}

func TestMergePayloadEmptyInputs(t *testing.T) {
	merged, err := MergePayload(nil, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(merged))

	merged, err = MergePayload(json.RawMessage(`{"a":1}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(merged))
}

func TestMergePayloadMalformed(t *testing.T) {
	_, err := MergePayload(json.RawMessage(`{`), json.RawMessage(`{}`))
	assert.Error(t, err)
	_, err = MergePayload(json.RawMessage(`{}`), json.RawMessage(`[1]`))
	assert.Error(t, err)
}
