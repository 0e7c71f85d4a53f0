package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/duggee/stakeboard/internal/db"
	"github.com/duggee/stakeboard/internal/viewmodel"
)

// Console is the daemon surface exposed as MCP tools.
type Console interface {
	NodeID() string
	Uptime() time.Duration
	View() viewmodel.Page
	Dispatch(ctx context.Context, intents ...viewmodel.Intent) (viewmodel.Page, error)
	RequestRefresh()
	ChainStatus() map[string]interface{}
	SnapshotStatus() map[string]interface{}
	WalletStatus() map[string]interface{}
	ImportWallet(key string) error
	GenerateNewWallet() error
	SignMessage(message string) (map[string]interface{}, error)
	RecentSubmissions(limit int) ([]db.Submission, error)
}

// MCPServer wraps the MCP protocol server with stakeboard tools.
type MCPServer struct {
	server  *mcp.Server
	console Console
}

// New creates an MCP server with all stakeboard tools registered.
func New(version string, console Console) *MCPServer {
	s := &MCPServer{
		console: console,
		server: mcp.NewServer(
			&mcp.Implementation{
				Name:    "stakeboard",
				Version: version,
			},
			&mcp.ServerOptions{
				Instructions: "Stakeboard staking console. Provides tools to read the staking pool and the connected account, and to stake, unstake, claim rewards and withdraw.",
			},
		),
	}
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects.
func (s *MCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

