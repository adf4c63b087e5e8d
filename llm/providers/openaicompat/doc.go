// Package openaicompat provides a shared implementation for OpenAI-compatible
// chat completion endpoints (OpenAI, Gemini's OpenAI endpoint, Fireworks and
// any self-hosted gateway).
//
// Image messages are sent as image_url content parts carrying base64 data
// URLs, followed by the caption as a text part.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName:  "fireworks",
//	    APIKey:        cfg.APIKey,
//	    BaseURL:       "https://api.fireworks.ai/inference",
//	    FallbackModel: "accounts/fireworks/models/llama-v3p1-70b-instruct",
//	}, logger)
package openaicompat
