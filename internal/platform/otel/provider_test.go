package otel_test

import (
	"context"
	"testing"

	"github.com/alanyoungcy/parimarket/internal/platform/otel"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name string
		cfg  otel.Config
	}{
		{name: "disabled", cfg: otel.Config{Endpoint: "http://192.0.2.1:4318"}},
		{name: "enabled without endpoint", cfg: otel.Config{Enabled: true}},
		// Non-routable address so no export actually happens.
		{name: "enabled", cfg: otel.Config{Enabled: true, Endpoint: "http://192.0.2.1:4318", ServiceName: "test"}},
		{name: "ratio sampler", cfg: otel.Config{Enabled: true, Endpoint: "http://192.0.2.1:4318", SampleRatio: 0.25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := otel.Setup(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
}
