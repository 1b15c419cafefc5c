// Package shutdown coordinates graceful termination of docmesh-server.
//
// Components register named hooks; on SIGINT, SIGTERM or cancellation of
// the serving context the hooks run in reverse registration order under a
// shared deadline.
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("store", func(ctx context.Context) error { return store.Close() })
//	err := h.Wait(ctx)
package shutdown
