// Package bootstrap wires the application together: configuration,
// logging, storage, the correlation engine, notification dispatch and
// the HTTP API. It keeps main.go down to lifecycle calls.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := app.Start(ctx); err != nil {
//	    app.Shutdown()
//	    log.Fatal(err)
//	}
//
//	app.WaitForShutdown()
//	app.Shutdown()
package bootstrap
