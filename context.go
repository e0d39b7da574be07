package ramcloud

import (
	"github.com/ramcloud/ramcloud/coordinator"
	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/serverlist"
	"github.com/ramcloud/ramcloud/transport"
)

// Context bundles the collaborators an RPC wrapper or Config Cache needs:
// the dispatcher, the transport manager, the cluster membership view, and
// the coordinator client. Re-expresses spec.md §9's process-wide Context
// as an explicit handle threaded through constructors instead of package
// globals, so a client, a test, and the ramcloudctl CLI can each build
// their own without contending over hidden singletons (spec.md §9 Design
// Note "Global state").
type Context struct {
	Dispatcher  transport.Dispatcher
	Transport   transport.TransportManager
	ServerList  serverlist.ServerList
	Coordinator coordinator.ConfigFetcher
	Log         logging.Logger
}

// NewContext constructs a Context from its five collaborators. All are
// required; callers building a test or CLI harness should pass mocks
// explicitly rather than relying on zero values.
func NewContext(dispatcher transport.Dispatcher, tm transport.TransportManager, servers serverlist.ServerList, coord coordinator.ConfigFetcher, log logging.Logger) *Context {
	return &Context{
		Dispatcher:  dispatcher,
		Transport:   tm,
		ServerList:  servers,
		Coordinator: coord,
		Log:         log,
	}
}
