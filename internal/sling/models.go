package sling

import (
	"os"
	"strings"

	"github.com/sprinteroz/overstory/internal/config"
	"github.com/sprinteroz/overstory/pkg/overstory"
)

// ResolveModel maps a capability to the model alias passed to the agent CLI
// and the environment needed to reach it. Models are configured as
// "<provider>/<model>"; a native provider (or a bare alias) needs no
// environment, while a gateway provider yields the Anthropic-shaped bundle
// its proxy expects.
func ResolveModel(cfg *config.Config, capability overstory.Capability) (string, map[string]string) {
	alias := cfg.Models[string(capability)]
	if alias == "" {
		return "", nil
	}

	providerName, model, found := strings.Cut(alias, "/")
	if !found {
		return alias, nil
	}

	provider, ok := cfg.Providers[providerName]
	if !ok || provider.Type == "native" {
		return model, nil
	}

	env := map[string]string{
		"ANTHROPIC_BASE_URL": provider.BaseURL,
		// Placeholder so the CLI does not fall back to a real key; the
		// gateway authenticates via its own token below.
		"ANTHROPIC_API_KEY":              "",
		"ANTHROPIC_DEFAULT_SONNET_MODEL": model,
	}
	if provider.AuthTokenEnv != "" {
		env["ANTHROPIC_AUTH_TOKEN"] = os.Getenv(provider.AuthTokenEnv)
	}
	return model, env
}
