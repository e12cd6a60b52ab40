// Package cmd provides command implementations for the correlation engine
// daemon.
package cmd

import (
	"github.com/ruaan-deysel/battcorrelate/daemon/domain"
	"github.com/ruaan-deysel/battcorrelate/daemon/services"
)

// Boot represents the run command that starts the correlation engine. MCP
// STDIO is a mode of this same command rather than a separate kong
// sub-command, since it shares every flag the other modes do:
// --virtual-board/--port/--bridge select the snapshot source regardless
// of transport.
type Boot struct{}

// Run executes the boot command by creating and running the orchestrator,
// dispatching to MCP STDIO mode when configured.
func (b *Boot) Run(ctx *domain.Context) error {
	o := services.CreateOrchestrator(ctx)
	if ctx.MCPStdio {
		return o.RunMCPStdio()
	}
	return o.Run()
}
