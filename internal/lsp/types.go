package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LSP protocol types, limited to what the five query operations need

// Position in a text document (0-based line and character)
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location represents a location inside a resource
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// LocationLink is the richer form of Location some servers return for definitions
type LocationLink struct {
	OriginSelectionRange *Range `json:"originSelectionRange,omitempty"`
	TargetURI            string `json:"targetUri"`
	TargetRange          Range  `json:"targetRange"`
	TargetSelectionRange Range  `json:"targetSelectionRange"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

type ReferenceParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Context      ReferenceContext       `json:"context"`
}

type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type CompletionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// SymbolKind represents the kind of a symbol
type SymbolKind int

const (
	SymbolKindFile          SymbolKind = 1
	SymbolKindModule        SymbolKind = 2
	SymbolKindNamespace     SymbolKind = 3
	SymbolKindPackage       SymbolKind = 4
	SymbolKindClass         SymbolKind = 5
	SymbolKindMethod        SymbolKind = 6
	SymbolKindProperty      SymbolKind = 7
	SymbolKindField         SymbolKind = 8
	SymbolKindConstructor   SymbolKind = 9
	SymbolKindEnum          SymbolKind = 10
	SymbolKindInterface     SymbolKind = 11
	SymbolKindFunction      SymbolKind = 12
	SymbolKindVariable      SymbolKind = 13
	SymbolKindConstant      SymbolKind = 14
	SymbolKindString        SymbolKind = 15
	SymbolKindNumber        SymbolKind = 16
	SymbolKindBoolean       SymbolKind = 17
	SymbolKindArray         SymbolKind = 18
	SymbolKindObject        SymbolKind = 19
	SymbolKindKey           SymbolKind = 20
	SymbolKindNull          SymbolKind = 21
	SymbolKindEnumMember    SymbolKind = 22
	SymbolKindStruct        SymbolKind = 23
	SymbolKindEvent         SymbolKind = 24
	SymbolKindOperator      SymbolKind = 25
	SymbolKindTypeParameter SymbolKind = 26
)

var symbolKindNames = map[SymbolKind]string{
	SymbolKindFile:          "File",
	SymbolKindModule:        "Module",
	SymbolKindNamespace:     "Namespace",
	SymbolKindPackage:       "Package",
	SymbolKindClass:         "Class",
	SymbolKindMethod:        "Method",
	SymbolKindProperty:      "Property",
	SymbolKindField:         "Field",
	SymbolKindConstructor:   "Constructor",
	SymbolKindEnum:          "Enum",
	SymbolKindInterface:     "Interface",
	SymbolKindFunction:      "Function",
	SymbolKindVariable:      "Variable",
	SymbolKindConstant:      "Constant",
	SymbolKindString:        "String",
	SymbolKindNumber:        "Number",
	SymbolKindBoolean:       "Boolean",
	SymbolKindArray:         "Array",
	SymbolKindObject:        "Object",
	SymbolKindKey:           "Key",
	SymbolKindNull:          "Null",
	SymbolKindEnumMember:    "EnumMember",
	SymbolKindStruct:        "Struct",
	SymbolKindEvent:         "Event",
	SymbolKindOperator:      "Operator",
	SymbolKindTypeParameter: "TypeParameter",
}

// String returns a human-readable name for the kind
func (k SymbolKind) String() string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// DocumentSymbol is one node of a document's symbol tree.
//
// Flat SymbolInformation results are converted to DocumentSymbols with
// Location set and no children
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	ContainerName  string           `json:"containerName,omitempty"`
	Location       *Location        `json:"location,omitempty"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat symbol form
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}

// CompletionItemKind mirrors the LSP enumeration
type CompletionItemKind int

type CompletionItem struct {
	Label      string             `json:"label"`
	Kind       CompletionItemKind `json:"kind,omitempty"`
	Detail     string             `json:"detail,omitempty"`
	InsertText string             `json:"insertText,omitempty"`
	SortText   string             `json:"sortText,omitempty"`
	FilterText string             `json:"filterText,omitempty"`
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// CompletionResult is what Completions returns regardless of the wire shape
type CompletionResult struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// MarkupContent represents a string value with a specific content type
type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Hover is the result of a hover request
type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               string             `json:"rootUri"`
	RootPath              string             `json:"rootPath"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
}

type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type ClientCapabilities struct {
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
	Workspace    *WorkspaceClientCapabilities    `json:"workspace,omitempty"`
}

type WorkspaceClientCapabilities struct {
	Configuration    bool `json:"configuration"`
	WorkspaceFolders bool `json:"workspaceFolders"`
}

type TextDocumentClientCapabilities struct {
	Definition     *LinkSupportCapabilities          `json:"definition,omitempty"`
	References     *DynamicRegistrationCapabilities  `json:"references,omitempty"`
	Hover          *HoverClientCapabilities          `json:"hover,omitempty"`
	Completion     *DynamicRegistrationCapabilities  `json:"completion,omitempty"`
	DocumentSymbol *DocumentSymbolClientCapabilities `json:"documentSymbol,omitempty"`
}

type DynamicRegistrationCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type LinkSupportCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
	LinkSupport         bool `json:"linkSupport"`
}

type HoverClientCapabilities struct {
	DynamicRegistration bool     `json:"dynamicRegistration"`
	ContentFormat       []string `json:"contentFormat"`
}

type DocumentSymbolClientCapabilities struct {
	DynamicRegistration               bool `json:"dynamicRegistration"`
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities keeps the providers as raw values since servers send
// either booleans or option objects
type ServerCapabilities struct {
	TextDocumentSync       any `json:"textDocumentSync,omitempty"`
	DefinitionProvider     any `json:"definitionProvider,omitempty"`
	ReferencesProvider     any `json:"referencesProvider,omitempty"`
	HoverProvider          any `json:"hoverProvider,omitempty"`
	DocumentSymbolProvider any `json:"documentSymbolProvider,omitempty"`
	CompletionProvider     any `json:"completionProvider,omitempty"`
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeLocations accepts Location | Location[] | LocationLink[] | null
func decodeLocations(raw json.RawMessage) ([]Location, error) {
	if isNull(raw) {
		return []Location{}, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '{' {
		var loc Location
		if err := json.Unmarshal(trimmed, &loc); err != nil {
			return nil, fmt.Errorf("%w: location: %v", ErrInvalidResponse, err)
		}
		return []Location{loc}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: locations: %v", ErrInvalidResponse, err)
	}
	locations := make([]Location, 0, len(items))
	for _, item := range items {
		var probe struct {
			URI       string `json:"uri"`
			TargetURI string `json:"targetUri"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, fmt.Errorf("%w: locations: %v", ErrInvalidResponse, err)
		}
		if probe.TargetURI != "" {
			var link LocationLink
			if err := json.Unmarshal(item, &link); err != nil {
				return nil, fmt.Errorf("%w: location link: %v", ErrInvalidResponse, err)
			}
			locations = append(locations, Location{URI: link.TargetURI, Range: link.TargetSelectionRange})
			continue
		}
		var loc Location
		if err := json.Unmarshal(item, &loc); err != nil {
			return nil, fmt.Errorf("%w: location: %v", ErrInvalidResponse, err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// decodeDocumentSymbols accepts DocumentSymbol[] | SymbolInformation[] | null
func decodeDocumentSymbols(raw json.RawMessage) ([]DocumentSymbol, error) {
	if isNull(raw) {
		return []DocumentSymbol{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: document symbols: %v", ErrInvalidResponse, err)
	}
	symbols := make([]DocumentSymbol, 0, len(items))
	for _, item := range items {
		var probe struct {
			Location *json.RawMessage `json:"location"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, fmt.Errorf("%w: document symbols: %v", ErrInvalidResponse, err)
		}
		if probe.Location != nil {
			var info SymbolInformation
			if err := json.Unmarshal(item, &info); err != nil {
				return nil, fmt.Errorf("%w: symbol information: %v", ErrInvalidResponse, err)
			}
			loc := info.Location
			symbols = append(symbols, DocumentSymbol{
				Name:           info.Name,
				Kind:           info.Kind,
				Range:          loc.Range,
				SelectionRange: loc.Range,
				ContainerName:  info.ContainerName,
				Location:       &loc,
			})
			continue
		}
		var sym DocumentSymbol
		if err := json.Unmarshal(item, &sym); err != nil {
			return nil, fmt.Errorf("%w: document symbol: %v", ErrInvalidResponse, err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// decodeCompletions accepts CompletionItem[] | CompletionList | null
func decodeCompletions(raw json.RawMessage) (*CompletionResult, error) {
	result := &CompletionResult{Items: []CompletionItem{}}
	if isNull(raw) {
		return result, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &result.Items); err != nil {
			return nil, fmt.Errorf("%w: completion items: %v", ErrInvalidResponse, err)
		}
		return result, nil
	}
	var list CompletionList
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("%w: completion list: %v", ErrInvalidResponse, err)
	}
	result.IsIncomplete = list.IsIncomplete
	if list.Items != nil {
		result.Items = list.Items
	}
	return result, nil
}

// decodeHover accepts Hover | null, with contents given as MarkupContent,
// MarkedString or MarkedString[]
func decodeHover(raw json.RawMessage) (*Hover, error) {
	if isNull(raw) {
		return nil, nil
	}
	var wire struct {
		Contents json.RawMessage `json:"contents"`
		Range    *Range          `json:"range,omitempty"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: hover: %v", ErrInvalidResponse, err)
	}
	contents, err := decodeMarkup(wire.Contents)
	if err != nil {
		return nil, err
	}
	return &Hover{Contents: contents, Range: wire.Range}, nil
}

func decodeMarkup(raw json.RawMessage) (MarkupContent, error) {
	if isNull(raw) {
		return MarkupContent{Kind: "plaintext"}, nil
	}
	trimmed := bytes.TrimSpace(raw)
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return MarkupContent{}, fmt.Errorf("%w: hover contents: %v", ErrInvalidResponse, err)
		}
		return MarkupContent{Kind: "plaintext", Value: s}, nil
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return MarkupContent{}, fmt.Errorf("%w: hover contents: %v", ErrInvalidResponse, err)
		}
		var buf bytes.Buffer
		kind := "plaintext"
		for i, part := range parts {
			m, err := decodeMarkup(part)
			if err != nil {
				return MarkupContent{}, err
			}
			if m.Kind == "markdown" {
				kind = "markdown"
			}
			if i > 0 {
				buf.WriteString("\n\n")
			}
			buf.WriteString(m.Value)
		}
		return MarkupContent{Kind: kind, Value: buf.String()}, nil
	default:
		var obj struct {
			Kind     string `json:"kind"`
			Language string `json:"language"`
			Value    string `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return MarkupContent{}, fmt.Errorf("%w: hover contents: %v", ErrInvalidResponse, err)
		}
		if obj.Kind != "" {
			return MarkupContent{Kind: obj.Kind, Value: obj.Value}, nil
		}
		// MarkedString {language, value} renders as a fenced code block
		return MarkupContent{Kind: "markdown", Value: "```" + obj.Language + "\n" + obj.Value + "\n```"}, nil
	}
}
