package routing

import (
	"fmt"

	"stride/internal/config"
)

// NewRouter builds the backend named by cfg.Provider. "none" yields a nil
// Router, which makes every gateway call fall back to straight geometry.
func NewRouter(cfg config.RoutingConfig) (Router, error) {
	switch cfg.Provider {
	case "", "osrm":
		return NewOSRM(cfg.OSRMBaseURL), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("routing: google provider needs an API key")
		}
		g, err := NewGoogle(cfg.GoogleAPIKey)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("routing: unknown provider %q", cfg.Provider)
	}
}
