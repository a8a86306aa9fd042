package api

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/factnorm/pkg/kit"
	"github.com/hazyhaar/factnorm/pkg/normalize"
)

// RegisterMCPTools registers the four factnorm MCP tools on the server.
func RegisterMCPTools(srv *server.MCPServer, svc *Service) {
	registerNormalizeOne(srv, svc)
	registerNormalizeMany(srv, svc)
	registerRealign(srv, svc)
	registerListLanguages(srv, svc)
}

func languageOption() mcp.ToolOption {
	return mcp.WithString("language", mcp.Description("Rule language code (e.g. en, it); defaults to the server language"))
}

func registerNormalizeOne(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool("normalize_one",
		mcp.WithDescription("Find one date or duration expression in a text and return its span, category and structured value."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The text to normalize")),
		languageOption(),
		mcp.WithString("conflict", mcp.Description("Which match wins: first (default), longest or shortest")),
	)

	kit.RegisterMCPTool(srv, tool, svc.normalizeOne, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		text, err := kit.RequiredStringArg(req, "text")
		if err != nil {
			return nil, err
		}
		lang, err := kit.StringArg(req, "language")
		if err != nil {
			return nil, err
		}
		c, err := kit.StringArg(req, "conflict")
		if err != nil {
			return nil, err
		}
		conflict, err := normalize.ParseConflict(c)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &normalizeOneReq{Language: lang, Text: text, Conflict: conflict}}, nil
	})
}

func registerNormalizeMany(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool("normalize_many",
		mcp.WithDescription("Find every non-overlapping date or duration expression in a text, left to right."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The text to normalize")),
		languageOption(),
	)

	kit.RegisterMCPTool(srv, tool, svc.normalizeMany, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		text, err := kit.RequiredStringArg(req, "text")
		if err != nil {
			return nil, err
		}
		lang, err := kit.StringArg(req, "language")
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &normalizeManyReq{Language: lang, Text: text}}, nil
	})
}

func registerRealign(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool("realign",
		mcp.WithDescription("Merge the tokens of one tagged sentence that form a date or duration into single ENT tokens."),
		mcp.WithString("tokens", mcp.Required(), mcp.Description("Tab-separated token rows of a single sentence: id, index, token, entity, lemma, [extra...], pos, tag")),
		languageOption(),
	)

	kit.RegisterMCPTool(srv, tool, svc.realign, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		rows, err := kit.RequiredStringArg(req, "tokens")
		if err != nil {
			return nil, err
		}
		lang, err := kit.StringArg(req, "language")
		if err != nil {
			return nil, err
		}
		sentences, err := normalize.ReadTokens(strings.NewReader(rows), "")
		if err != nil {
			return nil, err
		}
		if len(sentences) != 1 {
			return nil, fmt.Errorf("tokens must hold exactly one sentence, got %d", len(sentences))
		}
		return &kit.MCPDecodeResult{Request: &realignReq{Language: lang, Tokens: sentences[0]}}, nil
	})
}

func registerListLanguages(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool("list_languages",
		mcp.WithDescription("List the loaded rule languages with their categories, rule counts and helper functions."),
	)

	kit.RegisterMCPTool(srv, tool, svc.listLanguages, func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	})
}
