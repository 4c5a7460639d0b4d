package shader

// CacheBuilderOption is a functional option used to configure a Cache during construction.
type CacheBuilderOption func(*cache)

// WithDirectory sets the directory within the cache's file system that holds the .spv files.
//
// Parameters:
//   - dir: the slash-separated directory, "." by default
//
// Returns:
//   - CacheBuilderOption: a function that sets the shader directory
func WithDirectory(dir string) CacheBuilderOption {
	return func(c *cache) {
		c.dir = dir
	}
}

// WithEntryPoint sets the entry point name used for every loaded module.
//
// Parameters:
//   - name: the entry point, "main" by default
//
// Returns:
//   - CacheBuilderOption: a function that sets the entry point
func WithEntryPoint(name string) CacheBuilderOption {
	return func(c *cache) {
		c.entryPoint = name
	}
}
