package main

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Chative-Finance-Assistant/agent/contract"
)

func TestEngineConfigPassthrough(t *testing.T) {
	t.Parallel()

	cfg := EngineConfig{MaxHops: 3, PassthroughContentTypes: []string{" chart", "IMAGE", ""}}
	got, err := cfg.passthrough()
	if err != nil {
		t.Fatalf("passthrough() error = %v", err)
	}
	if len(got) != 2 || got[0] != contractx.ContentChart || got[1] != contractx.ContentImage {
		t.Fatalf("passthrough() = %v", got)
	}
}

func TestEngineConfigValidate(t *testing.T) {
	t.Parallel()

	if err := (&EngineConfig{MaxHops: 0}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("zero hops err = %v", err)
	}
	if err := (&EngineConfig{MaxHops: 2, PassthroughContentTypes: []string{"VIDEO"}}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("unknown content type err = %v", err)
	}
	if err := (&EngineConfig{MaxHops: 2}).Validate(); err != nil {
		t.Fatalf("valid config err = %v", err)
	}
}

func TestLoadManifestDefault(t *testing.T) {
	t.Parallel()

	m, err := loadManifest("  ")
	if err != nil {
		t.Fatalf("loadManifest() error = %v", err)
	}
	if !m.Has(contractx.AgentOnboarding) {
		t.Fatal("default manifest is missing onboarding")
	}
}
