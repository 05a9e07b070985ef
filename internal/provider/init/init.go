// Package init exists solely to trigger provider registration via import
// side-effects. Import this package once in your main or cmd layer:
//
//	import _ "github.com/sanix-darker/prbot/internal/provider/init"
//
// This registers all built-in providers (openai and its compatible
// services, azure, anthropic, gemini) with the global provider.Registry.
package init

import (
	_ "github.com/sanix-darker/prbot/internal/provider/anthropic"
	_ "github.com/sanix-darker/prbot/internal/provider/azure"
	_ "github.com/sanix-darker/prbot/internal/provider/gemini"
	_ "github.com/sanix-darker/prbot/internal/provider/openai"
)
