package core

import (
	"net/url"
	"strings"
)

// ClassifyPipeline decides how a source URL should reach the element. A
// manifest extension alone is not enough: without adaptive support the URL
// falls back to direct assignment and the host decides what to do with it.
func ClassifyPipeline(sourceURL string, env Environment) PipelineKind {
	if !env.AdaptiveSupport {
		return PipelineDirect
	}

	path := sourceURL
	if parsed, err := url.Parse(sourceURL); err == nil && parsed.Path != "" {
		path = parsed.Path
	}
	if strings.HasSuffix(strings.ToLower(path), ".m3u8") {
		return PipelineHLS
	}
	return PipelineDirect
}
