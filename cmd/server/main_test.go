package main

import (
	"testing"

	"centralkitchen/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigRejectsWildcardOriginInProduction(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "*",
		DatabaseURL:   "postgres://kitchen@localhost/kitchen",
	})
	if err == nil {
		t.Fatalf("expected wildcard origin with postgres to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:    "0123456789abcdef0123456789abcdef",
		AllowedOrigin: "https://kitchen.example.com",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
