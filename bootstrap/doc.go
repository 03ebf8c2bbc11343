// Package bootstrap wires configuration, rule loading and the detection
// pipeline into a runnable App. It keeps main and the CLI commands thin and
// lets the whole pipeline be exercised from tests.
//
// Usage:
//
//	cfg, err := bootstrap.InitConfig(path)
//	if err != nil {
//	    return err
//	}
//	_, sugar, err := bootstrap.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
//	if err != nil {
//	    return err
//	}
//	app, err := bootstrap.NewApp(cfg, sugar)
//	if err != nil {
//	    return err
//	}
//	defer app.Shutdown()
//
//	snapshot, err := app.Scan(ctx, paths)
package bootstrap
