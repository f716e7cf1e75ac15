package domain

// Container represents a container as reported by the engine (Docker, Podman, etc.)
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
	State  string `json:"state"` // running, exited, created, etc.
}

// Running reports whether the engine considers the container up.
func (c Container) Running() bool {
	return c.State == "running"
}
