package service

import (
	"context"
	"testing"
	"time"

	"firestige.xyz/wirelab/internal/responder"
	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/hexutil"
	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/plugin"
	"firestige.xyz/wirelab/pkg/schema"
	"firestige.xyz/wirelab/plugins/parser/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkspace() *store.Workspace {
	return &store.Workspace{
		Protocols: []schema.Protocol{{ID: "hb", Fields: []schema.Field{
			{ID: "magic", Name: "Magic", Type: schema.TypeUint16, Length: 2},
			{ID: "cmd", Name: "Command", Type: schema.TypeUint8, Length: 1, EnumID: "cmds"},
		}}},
		Enums: []schema.EnumTable{{ID: "cmds", Items: []schema.EnumItem{
			{Value: schema.NumberValue(1), Label: "PING"},
		}}},
		Templates: []schema.Template{
			{ID: "ping", ProtocolID: "hb", Values: map[string]any{"magic": "0xABCD", "cmd": 1}},
			{ID: "pong", ProtocolID: "hb", Values: map[string]any{"magic": "0xABCD", "cmd": 2}},
		},
		ReplyRules: []store.ReplyRule{{
			ID: "r1", IsActive: true, MatchProtocolID: "hb", MatchFieldID: "cmd", MatchValue: "1",
			Actions: []store.ReplyAction{{TemplateID: "pong"}},
		}},
	}
}

func TestIdentifyTemplate(t *testing.T) {
	id := NewIdentifier(testWorkspace(), []plugin.Parser{stun.NewParser()})

	res := id.Identify([]byte{0xab, 0xcd, 0x01})
	require.True(t, res.Matched())
	assert.Equal(t, "hb", res.ProtocolName())
	assert.Equal(t, "ping", res.TemplateName())
	require.Len(t, res.Fields, 2)
	assert.Equal(t, "1 (PING)", res.Fields[1].DisplayValue)
}

func TestIdentifyFallsBackToParser(t *testing.T) {
	id := NewIdentifier(testWorkspace(), []plugin.Parser{stun.NewParser()})

	data, err := hexutil.ToBuffer("0001 0000 2112A442 b7e7a701bc34d686fa87dfae")
	require.NoError(t, err)

	res := id.Identify(data)
	require.True(t, res.Matched())
	assert.Equal(t, "stun", res.Parser)
	assert.Equal(t, "stun", res.ProtocolName())
	assert.Nil(t, res.Template)
	assert.Equal(t, "0x0001 (Binding Request)", res.Fields[0].DisplayValue)
}

func TestIdentifyNothing(t *testing.T) {
	id := NewIdentifier(testWorkspace(), nil)

	res := id.Identify([]byte{1, 2, 3, 4})
	assert.False(t, res.Matched())
	assert.Empty(t, res.ProtocolName())
	assert.Empty(t, res.Fields)
}

func TestServiceProcess(t *testing.T) {
	ws := testWorkspace()
	rep := &mockReporter{name: "mock"}
	d := NewDispatcher(DispatcherConfig{Reporters: []plugin.Reporter{rep}, BatchTimeout: time.Hour})
	d.Start(context.Background())

	svc := &Service{
		Source:     "test",
		Identifier: NewIdentifier(ws, nil),
		Responder:  responder.New(ws),
		Dispatcher: d,
	}

	in := &models.Event{Direction: models.Inbound, Payload: []byte{0xab, 0xcd, 0x01}}
	replies := svc.Process(in)
	require.Len(t, replies, 1)
	assert.Equal(t, []byte{0xab, 0xcd, 0x02}, replies[0].Payload)
	assert.Equal(t, "ping", in.Template)
	assert.Equal(t, "r1", in.Labels["reply_rule"])

	// Outbound traffic never triggers replies.
	out := &models.Event{Direction: models.Outbound, Payload: []byte{0xab, 0xcd, 0x01}}
	assert.Empty(t, svc.Process(out))

	d.Close()
	evts := rep.events()
	require.Len(t, evts, 2)
	assert.Same(t, in, evts[0])
	assert.Equal(t, "hb", evts[1].Protocol)
}

func TestNewParsers(t *testing.T) {
	plugin.RegisterParser("stun-test", stun.NewParser)

	parsers, err := NewParsers([]string{"stun-test"})
	require.NoError(t, err)
	require.Len(t, parsers, 1)
	assert.Equal(t, "stun", parsers[0].Name())

	_, err = NewParsers([]string{"nope"})
	assert.Error(t, err)
}
