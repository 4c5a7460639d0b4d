package loader

import "github.com/Carmen-Shannon/oxy-vk/engine/model"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithDecodeLimit bounds how many images of one file are decoded concurrently.
//
// Parameters:
//   - n: the goroutine limit; values <= 0 mean unbounded
//
// Returns:
//   - LoaderBuilderOption: a function that applies the limit to a loader
func WithDecodeLimit(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.decodeLimit = n
	}
}

// WithAsset pre-populates the cache, for procedural assets built in code.
//
// Parameters:
//   - key: the cache key
//   - asset: the asset to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the asset option to a loader
func WithAsset(key string, asset *model.Asset) LoaderBuilderOption {
	return func(l *loader) {
		l.cache[key] = asset
	}
}
