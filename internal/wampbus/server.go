package wampbus

import (
	"net/http"

	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"

	"github.com/1ureka/sharelink/internal/presence"
	"github.com/1ureka/sharelink/internal/util"
)

// Server is an embedded WAMP router for one realm, plus the presence agent
// that answers the join destination.
type Server struct {
	router router.Router
	agent  *presence.Agent
	local  *Client
}

// NewServer creates the router and starts the presence agent on it.
func NewServer(realm string) (*Server, error) {
	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:           wamp.URI(realm),
				AnonymousAuth: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, util.StdLogger{Prefix: "wamp router"})
	if err != nil {
		return nil, err
	}

	local, err := Local(nxr, realm)
	if err != nil {
		nxr.Close()
		return nil, err
	}

	agent := presence.NewAgent(local)
	if err := agent.Start(); err != nil {
		local.Close()
		nxr.Close()
		return nil, err
	}

	return &Server{router: nxr, agent: agent, local: local}, nil
}

// Router returns the embedded router, for in-process clients.
func (s *Server) Router() router.Router { return s.router }

// Handler returns the websocket endpoint of the router.
func (s *Server) Handler() http.Handler {
	return router.NewWebsocketServer(s.router)
}

// Users returns the users currently online.
func (s *Server) Users() []string { return s.agent.Registry().Users() }

// Close stops the presence agent and the router.
func (s *Server) Close() {
	defer s.router.Close()
	s.agent.Stop()
	s.local.Close()
}
