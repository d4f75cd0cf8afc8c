package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"firestige.xyz/wirelab/pkg/codec"
	"firestige.xyz/wirelab/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "rules": [
    {
      "id": "hb",
      "name": "Heartbeat",
      "type": "custom",
      "fields": [
        {"id": "magic", "name": "Magic", "length": 2, "type": "uint16", "endianness": "be", "algorithm": "default"},
        {"id": "cmd", "name": "Command", "length": 1, "type": "uint8", "endianness": "be", "algorithm": "default", "enumId": "cmds"},
        {"id": "n", "name": "Count", "length": 1, "type": "uint8", "endianness": "be", "algorithm": "default"},
        {"id": "items", "name": "Items", "offset": 4, "length": 1, "type": "array", "endianness": "be", "algorithm": "uint8", "countFieldId": "n"}
      ]
    }
  ],
  "enums": [
    {"id": "cmds", "name": "Commands", "items": [
      {"value": 1, "label": "PING"},
      {"value": "0x02", "label": "PONG"}
    ]}
  ],
  "templates": [
    {"id": "ping", "name": "Ping", "protocolId": "hb", "values": {"magic": "0xABCD", "cmd": 1, "n": 2, "items": "10;20"}},
    {"id": "pong", "name": "Pong", "protocolId": "hb", "values": {"magic": 43981, "cmd": 2, "n": 0},
     "matchRanges": [{"type": "field", "fieldId": "cmd"}]}
  ],
  "replyRules": [
    {"id": "r1", "name": "answer", "isActive": true, "matchProtocolId": "hb", "matchFieldId": "cmd", "matchValue": "1", "responseTemplateId": "pong"}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func encodeAll(t *testing.T, ws *Workspace) [][]byte {
	t.Helper()
	var out [][]byte
	for _, tmpl := range ws.Templates {
		p, err := ws.Protocol(tmpl.ProtocolID)
		require.NoError(t, err)
		b, err := codec.Encode(p, tmpl.Values)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestLoadJSON(t *testing.T) {
	ws, err := Load(writeFile(t, "ws.json", sampleJSON))
	require.NoError(t, err)
	require.NoError(t, ws.Validate())

	require.Len(t, ws.Protocols, 1)
	assert.Equal(t, []string{"magic", "cmd", "n", "items"}, fieldIDs(ws.Protocols[0]))
	assert.Equal(t, schema.NumberValue(1), ws.Enums[0].Items[0].Value)
	assert.Equal(t, schema.TextValue("0x02"), ws.Enums[0].Items[1].Value)

	// Legacy responseTemplateId becomes a zero-delay action.
	require.Len(t, ws.ReplyRules, 1)
	assert.Equal(t, []ReplyAction{{TemplateID: "pong", Delay: 0}}, ws.ReplyRules[0].Actions)
	assert.Empty(t, ws.ReplyRules[0].ResponseTemplateID)

	bufs := encodeAll(t, ws)
	assert.Equal(t, []byte{0xab, 0xcd, 0x01, 0x02, 0x0a, 0x14}, bufs[0])
	assert.Equal(t, []byte{0xab, 0xcd, 0x02, 0x00}, bufs[1])
}

func fieldIDs(p schema.Protocol) []string {
	ids := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		ids[i] = f.ID
	}
	return ids
}

func TestRoundTripAcrossFormats(t *testing.T) {
	orig, err := Load(writeFile(t, "ws.json", sampleJSON))
	require.NoError(t, err)
	want := encodeAll(t, orig)

	for _, name := range []string{"ws.json", "ws.yaml", "ws.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Save(path, orig))

			back, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, orig.Protocols, back.Protocols)
			assert.Equal(t, orig.Enums, back.Enums)
			assert.Equal(t, orig.ReplyRules, back.ReplyRules)
			assert.Equal(t, want, encodeAll(t, back))
			assert.Equal(t, orig.Templates[1].MatchRanges, back.Templates[1].MatchRanges)
		})
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "ws.yaml")
	require.NoError(t, Save(path, &Workspace{}))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ws.yaml", entries[0].Name())
}

func TestUnsupportedExtension(t *testing.T) {
	_, err := Load(writeFile(t, "ws.ini", "x"))
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
	assert.True(t, errors.Is(Save(filepath.Join(t.TempDir(), "ws.txt"), &Workspace{}), ErrUnsupportedFile))
}

func TestValidateReferences(t *testing.T) {
	ws := &Workspace{
		Protocols: []schema.Protocol{{ID: "p", Fields: []schema.Field{
			{ID: "a", Type: schema.TypeUint8, Length: 1, EnumID: "nope"},
		}}},
		Templates: []schema.Template{
			{ID: "t1", ProtocolID: "missing"},
			{ID: "t2", ProtocolID: "p", MatchRanges: []schema.MatchRange{{Type: schema.RangeField, FieldID: "zz"}}},
		},
		ReplyRules: []ReplyRule{
			{ID: "r", MatchProtocolID: "p", MatchFieldID: "b", Actions: []ReplyAction{{TemplateID: "t9"}}},
		},
	}

	err := ws.Validate()
	require.Error(t, err)

	var refs []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var re ReferenceError
		if errors.As(e, &re) {
			refs = append(refs, re.Ref+"="+re.ID)
		}
	}
	assert.ElementsMatch(t, []string{
		"enumId=nope",
		"protocolId=missing",
		"matchRanges.fieldId=zz",
		"matchFieldId=b",
		"actions.templateId=t9",
	}, refs)
}

func TestLookups(t *testing.T) {
	ws, err := Load(writeFile(t, "ws.json", sampleJSON))
	require.NoError(t, err)

	p, err := ws.Protocol("hb")
	require.NoError(t, err)
	assert.Equal(t, "Heartbeat", p.Name)

	_, err = ws.Protocol("x")
	assert.True(t, errors.Is(err, ErrProtocolNotFound))

	tmpl, err := ws.Template("pong")
	require.NoError(t, err)
	assert.True(t, tmpl.Ranged())

	_, err = ws.Template("x")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestStoreOpenAndReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.json")

	s, err := Open(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Empty(t, s.Workspace().Protocols)

	bad := &Workspace{Templates: []schema.Template{{ID: "t", ProtocolID: "none"}}}
	require.Error(t, s.Replace(bad))
	assert.Empty(t, s.Workspace().Templates)

	good, err := Unmarshal([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)
	require.NoError(t, s.Replace(good))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, reopened.Workspace().Templates, 2)
}

func TestStoreRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.json")
	broken := `{"rules": [], "templates": [{"id": "t", "name": "T", "protocolId": "none", "values": {}}]}`
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	_, err := Open(path)
	assert.ErrorContains(t, err, "rejected")
}

func TestStoreReloadKeepsSnapshotOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ws.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	before := s.Workspace()
	require.Len(t, before.Templates, 2)

	huge := `{"rules": [{"id": "p", "name": "P", "fields": [
	  {"id": "b", "name": "B", "length": 4611686018427387904, "type": "byte", "endianness": "be", "algorithm": "default"}
	]}]}`
	require.NoError(t, os.WriteFile(path, []byte(huge), 0o644))
	assert.Error(t, s.Reload())
	assert.Same(t, before, s.Workspace())

	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0o644))
	require.NoError(t, s.Reload())
	assert.NotSame(t, before, s.Workspace())
}
