// Package extension mounts a Hub into a Forge application.
//
// The extension:
//   - builds the Hub from a store and a Config loaded from YAML
//   - runs store migrations on Init unless disabled
//   - registers the admin routes with OpenAPI metadata under BasePath
//   - starts the dispatcher on application start and drains it on shutdown
//   - reports health via store.Ping
//
// Usage:
//
//	ext := extension.New(
//	    extension.WithStore(pgStore),
//	    extension.WithBasePath("/v1"),
//	)
//	if err := ext.Init(ctx); err != nil {
//	    return err
//	}
//	_ = ext.RegisterRoutes(app.Router(), app.Logger())
//	return ext.Start(ctx)
package extension
