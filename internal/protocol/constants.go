package protocol

const (
	ToolNameCodeTask = "code_task"
	ToolNameInfill   = "infill"
)

const (
	ResourceURITasks  = "codemcp://tasks"
	ResourceURIModels = "codemcp://models"
	ResourceURIStats  = "codemcp://stats"
)

const (
	ErrorCodeUnauthorized    = "UNAUTHORIZED"
	ErrorCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrorCodeRateLimited     = "RATE_LIMITED"
	ErrorCodeMissingField    = "MISSING_FIELD"
	ErrorCodeInvalidField    = "INVALID_FIELD"
	ErrorCodeUnknownTool     = "UNKNOWN_TOOL"
	ErrorCodeInternal        = "INTERNAL"
)

// JSON-RPC 2.0 error codes.
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603
	// RPCServerError is used for transport-level refusals (auth, sessions,
	// rate limiting).
	RPCServerError = -32000
)

const (
	ProtocolVersion = "2025-06-18"
	ServerName      = "codemcp"

	DefaultListenAddr = "127.0.0.1:8087"
	DefaultMCPPath    = "/mcp"

	MCPSessionHeader  = "MCP-Session-Id"
	MCPProtocolHeader = "MCP-Protocol-Version"
)
