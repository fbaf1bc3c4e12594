// Package embeddings turns text into fixed-length vectors.
//
// A Provider talks to one embedding backend: the deterministic local hash
// embedder, OpenAI, Ollama or a Text Embeddings Inference server. The
// Vectorizer fronts a Provider with a timeout, a rate limit and an LRU
// cache, and never returns an error: any provider failure is absorbed by
// falling back to the local strategy.
package embeddings
