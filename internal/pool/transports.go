package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brokermcp/broker/internal/brokererr"
	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/store"
)

// connConfig is the shape a provider's store.Provider.Config JSON document
// takes: the same connection fields config.ProviderEntry carries for
// statically declared providers, so register_provider and the static YAML
// layer produce identical Config payloads.
type connConfig struct {
	Command string            `json:"command"`
	URL     string            `json:"url"`
	Env     map[string]string `json:"env"`
}

// NewConnector builds a [Connector] that dials the transport named by each
// provider's Transport field, reading Command/URL/Env from its stored
// Config JSON. client is reused across sessions, following the same
// pattern as mcphost.Host.
func NewConnector(client *mcpsdk.Client, manifest *Manifest) Connector {
	return func(ctx context.Context, p store.Provider) (*mcpsdk.ClientSession, context.CancelFunc, error) {
		var cc connConfig
		if len(p.Config) > 0 {
			if err := json.Unmarshal(p.Config, &cc); err != nil {
				return nil, nil, brokererr.New(brokererr.KindValidation,
					fmt.Sprintf("pool: invalid connection config for provider %s", p.Name), err)
			}
		}

		var transport mcpsdk.Transport
		var onConnected func(*exec.Cmd)

		switch p.Transport {
		case config.TransportStdio:
			executable, args := splitCommand(cc.Command)
			if executable == "" {
				return nil, nil, brokererr.New(brokererr.KindValidation,
					fmt.Sprintf("pool: stdio provider %s requires a non-empty command", p.Name), nil)
			}
			cmd := exec.CommandContext(ctx, executable, args...)
			for k, v := range cc.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
			// Inherit stderr so a misbehaving child's diagnostics surface in the
			// broker's own logs instead of vanishing.
			cmd.Stderr = os.Stderr
			transport = &mcpsdk.CommandTransport{Command: cmd}
			onConnected = func(c *exec.Cmd) {
				if manifest != nil && c.Process != nil {
					_ = manifest.RecordPID(c.Process.Pid)
				}
			}

		case config.TransportHTTP:
			if cc.URL == "" {
				return nil, nil, brokererr.New(brokererr.KindValidation,
					fmt.Sprintf("pool: http provider %s requires a non-empty url", p.Name), nil)
			}
			transport = &mcpsdk.StreamableClientTransport{Endpoint: cc.URL}

		case config.TransportSSE:
			if cc.URL == "" {
				return nil, nil, brokererr.New(brokererr.KindValidation,
					fmt.Sprintf("pool: sse provider %s requires a non-empty url", p.Name), nil)
			}
			// The legacy SSE transport resolves any relative endpoint URL it
			// receives over the event stream against this GET URL's base.
			transport = &mcpsdk.SSEClientTransport{Endpoint: cc.URL}

		default:
			return nil, nil, brokererr.New(brokererr.KindValidation,
				fmt.Sprintf("pool: provider %s has unknown transport %q", p.Name, p.Transport), nil)
		}

		connCtx, cancel := context.WithCancel(ctx)
		session, err := client.Connect(connCtx, transport, nil)
		if err != nil {
			cancel()
			return nil, nil, err
		}

		if cmdTransport, ok := transport.(*mcpsdk.CommandTransport); ok && onConnected != nil {
			onConnected(cmdTransport.Command)
		}

		return session, cancel, nil
	}
}

// splitCommand splits a command string on whitespace into an executable and
// its arguments.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
