package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/codec"
	"firestige.xyz/wirelab/pkg/hexutil"
	"firestige.xyz/wirelab/pkg/schema"
	"firestige.xyz/wirelab/plugins/parser/stun"
)

// DecodeRequest names a stored protocol or carries one inline.
type DecodeRequest struct {
	Hex        string           `json:"hex"`
	ProtocolID string           `json:"protocolId,omitempty"`
	Protocol   *schema.Protocol `json:"protocol,omitempty"`
}

// EncodeRequest encodes a stored template, or explicit values against a
// stored protocol.
type EncodeRequest struct {
	TemplateID string         `json:"templateId,omitempty"`
	ProtocolID string         `json:"protocolId,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
}

// EncodeResponse carries the encoded bytes and any per-field problems.
type EncodeResponse struct {
	Hex    string   `json:"hex"`
	Spaced string   `json:"spaced"`
	Length int      `json:"length"`
	Errors []string `json:"errors,omitempty"`
}

// MatchResponse is the identification result of one payload.
type MatchResponse struct {
	Matched    bool                  `json:"matched"`
	ProtocolID string                `json:"protocolId,omitempty"`
	TemplateID string                `json:"templateId,omitempty"`
	Parser     string                `json:"parser,omitempty"`
	Fields     []schema.DecodedField `json:"fields,omitempty"`
}

type hexRequest struct {
	Hex string `json:"hex"`
}

// bindJSON decodes the body keeping numbers as json.Number, so that 64-bit
// values reach the encoder intact.
func bindJSON(c *gin.Context, out any) bool {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func bindHex(c *gin.Context, text string) ([]byte, bool) {
	data, err := hexutil.ToBuffer(text)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return data, true
}

// Decode decodes hex against a protocol.
func (s *Server) Decode(c *gin.Context) {
	var req DecodeRequest
	if !bindJSON(c, &req) {
		return
	}
	data, ok := bindHex(c, req.Hex)
	if !ok {
		return
	}

	ws, ident := s.identifier()
	p := req.Protocol
	if p == nil {
		var err error
		if p, err = ws.Protocol(req.ProtocolID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
	} else if err := p.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"protocolId": p.ID, "fields": ident.Decode(data, p)})
}

// Encode encodes a template or a value map.
func (s *Server) Encode(c *gin.Context) {
	var req EncodeRequest
	if !bindJSON(c, &req) {
		return
	}

	ws := s.store.Workspace()
	protocolID, values := req.ProtocolID, req.Values
	if req.TemplateID != "" {
		tmpl, err := ws.Template(req.TemplateID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		protocolID = tmpl.ProtocolID
		if values == nil {
			values = tmpl.Values
		}
	}
	p, err := ws.Protocol(protocolID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	out, err := codec.Encode(p, values)
	if errors.Is(err, codec.ErrTooLarge) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	resp := EncodeResponse{Hex: hexutil.ToHex(out), Spaced: hexutil.ToSpacedHex(out), Length: len(out)}
	resp.Errors = fieldErrors(err)
	c.JSON(http.StatusOK, resp)
}

// fieldErrors flattens the joined encoder error.
func fieldErrors(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// Match identifies hex against the stored templates and the parsers.
func (s *Server) Match(c *gin.Context) {
	var req hexRequest
	if !bindJSON(c, &req) {
		return
	}
	data, ok := bindHex(c, req.Hex)
	if !ok {
		return
	}

	_, ident := s.identifier()
	res := ident.Identify(data)
	c.JSON(http.StatusOK, MatchResponse{
		Matched:    res.Matched(),
		ProtocolID: res.ProtocolName(),
		TemplateID: res.TemplateName(),
		Parser:     res.Parser,
		Fields:     res.Fields,
	})
}

// STUN decodes hex as a STUN message.
func (s *Server) STUN(c *gin.Context) {
	var req hexRequest
	if !bindJSON(c, &req) {
		return
	}
	data, ok := bindHex(c, req.Hex)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": stun.Decode(data)})
}

// GetWorkspace returns the whole workspace in its export format.
func (s *Server) GetWorkspace(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Workspace())
}

// PutWorkspace validates and stores a new workspace.
func (s *Server) PutWorkspace(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws, err := store.Unmarshal(bytes.TrimSpace(body), store.FormatJSON)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspace: " + err.Error()})
		return
	}
	if err := s.store.Replace(ws); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"protocols":  len(ws.Protocols),
		"enums":      len(ws.Enums),
		"templates":  len(ws.Templates),
		"replyRules": len(ws.ReplyRules),
	})
}

// ListProtocols returns every protocol.
func (s *Server) ListProtocols(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Workspace().Protocols)
}

// GetProtocol returns one protocol.
func (s *Server) GetProtocol(c *gin.Context) {
	p, err := s.store.Workspace().Protocol(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListTemplates returns every template.
func (s *Server) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Workspace().Templates)
}

// GetTemplate returns one template.
func (s *Server) GetTemplate(c *gin.Context) {
	t, err := s.store.Workspace().Template(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}
