package instance

import "github.com/angelmondragon/storefront-backend/pkg/env"

// GetID identifies the running process in logs: the platform dyno name,
// then the container hostname, then "local".
func GetID() string {
	if id := env.First("STOREFRONT_INSTANCE_ID", "DYNO", "HOSTNAME"); id != "" {
		return id
	}
	return "local"
}
