package engine

import (
	"context"
	"fmt"

	"voicegen/internal/pkg/voicegen/registry"
)

// Router sends each model id to the loader for its backend family.
type Router struct {
	Conventional         Loader
	ReferenceConditioned Loader
}

func (r Router) Load(ctx context.Context, modelID string, device Device) (Handle, error) {
	var l Loader
	switch backend := registry.Classify(modelID); backend {
	case registry.ReferenceConditioned:
		l = r.ReferenceConditioned
	case registry.Conventional:
		l = r.Conventional
	default:
		return nil, fmt.Errorf("%s models are not served by an engine loader", backend)
	}
	if l == nil {
		return nil, fmt.Errorf("no loader configured for %s models", registry.Classify(modelID))
	}
	return l.Load(ctx, modelID, device)
}
