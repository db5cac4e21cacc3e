package server

import (
	"context"

	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/option"
	"github.com/stardustagi/ChatRelay/utils"
	"go.uber.org/zap"
)

// Server 进程级的生命周期, 收到退出信号后取消 Ctx
type Server struct {
	Ctx    context.Context
	opts   *option.Options
	cancel context.CancelFunc
	logger *zap.Logger
	doneCh chan struct{}
}

func NewServer(opts *option.Options) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		Ctx:    ctx,
		opts:   opts,
		cancel: cancel,
		logger: logs.GetLogger("Server"),
		doneCh: utils.MakeShutdownCh(),
	}
	return srv, nil
}

func (m *Server) Options() *option.Options {
	return m.opts
}

// HandleSignal 阻塞等待信号, 然后依次执行 cleanups
func (m *Server) HandleSignal(cleanups ...func()) {
	select {
	case <-m.doneCh:
	case <-m.Ctx.Done():
	}
	m.logger.Info("server shutting...")
	m.cancel()
	for _, fn := range cleanups {
		fn()
	}
	m.logger.Info("server shutdown completed")
}

// Shutdown 主动退出
func (m *Server) Shutdown() {
	m.cancel()
}
