package strategy

const (
	KeyCacheFirst        = "cache-first"
	KeyNetworkFirst      = "network-first"
	KeyNetworkFirstShell = "network-first-shell"
	KeyNetworkOnly       = "network-only"
	KeyCacheOnly         = "cache-only"
)

func init() {
	MustRegister(Profile{
		Key:          KeyCacheFirst,
		Description:  "serve cached entry without freshness check, otherwise fetch and store",
		Steps:        []Step{StepCache, StepNetwork, StepFallback},
		WriteThrough: true,
	})
	MustRegister(Profile{
		Key:          KeyNetworkFirst,
		Description:  "fetch live response, fall back to cache when the network fails",
		Steps:        []Step{StepNetwork, StepCache, StepFallback},
		WriteThrough: true,
	})
	MustRegister(Profile{
		Key:          KeyNetworkFirstShell,
		Description:  "network first, then exact cache, then cached site root, then offline page",
		Steps:        []Step{StepNetwork, StepCache, StepRootCache, StepFallback},
		WriteThrough: true,
	})
	MustRegister(Profile{
		Key:         KeyNetworkOnly,
		Description: "always fetch, never read or write the cache",
		Steps:       []Step{StepNetwork, StepFallback},
	})
	MustRegister(Profile{
		Key:         KeyCacheOnly,
		Description: "answer from cache only",
		Steps:       []Step{StepCache, StepFallback},
	})
}
