package policy

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestNewStaticEngine(t *testing.T) {
	tests := []struct {
		name    string
		config  *StaticEngineConfig
		wantErr bool
	}{
		{
			name:    "nil config uses default",
			config:  nil,
			wantErr: false,
		},
		{
			name:    "default config",
			config:  DefaultStaticConfig(),
			wantErr: false,
		},
		{
			name: "valid custom config",
			config: &StaticEngineConfig{
				Name:    "test-engine",
				Version: "1.0.0",
				Profiles: map[string]*PolicyDecision{
					"ops": {Subject: "ops", Roles: []string{"OPS"}, Permissions: []string{"CACHE_READ"}},
				},
			},
			wantErr: false,
		},
		{
			name: "empty name",
			config: &StaticEngineConfig{
				Name:     "",
				Version:  "1.0.0",
				Profiles: DefaultProfiles(),
			},
			wantErr: true,
		},
		{
			name: "empty version",
			config: &StaticEngineConfig{
				Name:     "test-engine",
				Version:  "",
				Profiles: DefaultProfiles(),
			},
			wantErr: true,
		},
		{
			name: "no profiles",
			config: &StaticEngineConfig{
				Name:     "test-engine",
				Version:  "1.0.0",
				Profiles: map[string]*PolicyDecision{},
			},
			wantErr: true,
		},
		{
			name: "profile without subject",
			config: &StaticEngineConfig{
				Name:     "test-engine",
				Version:  "1.0.0",
				Profiles: map[string]*PolicyDecision{"ops": {Roles: []string{"OPS"}}},
			},
			wantErr: true,
		},
		{
			name: "bad auth level",
			config: &StaticEngineConfig{
				Name:     "test-engine",
				Version:  "1.0.0",
				Profiles: map[string]*PolicyDecision{"ops": {Subject: "ops", AuthLevel: "AAL9"}},
			},
			wantErr: true,
		},
		{
			name: "upper-case profile name",
			config: &StaticEngineConfig{
				Name:     "test-engine",
				Version:  "1.0.0",
				Profiles: map[string]*PolicyDecision{"Ops": {Subject: "ops"}},
			},
			wantErr: true,
		},
		{
			name: "lifetime below one second",
			config: &StaticEngineConfig{
				Name:    "test-engine",
				Version: "1.0.0",
				Profiles: map[string]*PolicyDecision{"ops": {
					Subject:       "ops",
					TokenLifetime: func() *time.Duration { d := 10 * time.Millisecond; return &d }(),
				}},
			},
			wantErr: true,
		},
		{
			name: "lifetime with a fractional second",
			config: &StaticEngineConfig{
				Name:    "test-engine",
				Version: "1.0.0",
				Profiles: map[string]*PolicyDecision{"ops": {
					Subject:       "ops",
					TokenLifetime: func() *time.Duration { d := 1500 * time.Millisecond; return &d }(),
				}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewStaticEngine(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewStaticEngine() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && engine == nil {
				t.Error("NewStaticEngine() returned nil engine when no error expected")
			}
		})
	}
}

func TestStaticEngine_DefaultProfiles(t *testing.T) {
	engine, err := NewStaticEngine(nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	want := []string{"admin", "cache-admin", "cache-reader", "cache-writer", "user"}
	if got := engine.Profiles(); !reflect.DeepEqual(got, want) {
		t.Errorf("Profiles() = %v, want %v", got, want)
	}

	tests := []struct {
		profile     string
		roles       []string
		permissions []string
	}{
		{"admin", []string{"ADMIN", "USER"}, []string{"CACHE_READ", "CACHE_WRITE", "CACHE_DELETE", "CACHE_ADMIN"}},
		{"user", []string{"USER"}, []string{"CACHE_READ"}},
		{"cache-admin", []string{"USER"}, []string{"CACHE_READ", "CACHE_WRITE", "CACHE_DELETE", "CACHE_ADMIN"}},
		{"cache-writer", []string{"USER"}, []string{"CACHE_READ", "CACHE_WRITE"}},
		{"CACHE-READER", []string{"USER"}, []string{"CACHE_READ"}},
	}

	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			decision, err := engine.EvaluatePolicy(context.Background(), tt.profile)
			if err != nil {
				t.Fatalf("EvaluatePolicy() error = %v", err)
			}
			if !reflect.DeepEqual(decision.Roles, tt.roles) {
				t.Errorf("Roles = %v, want %v", decision.Roles, tt.roles)
			}
			if !reflect.DeepEqual(decision.Permissions, tt.permissions) {
				t.Errorf("Permissions = %v, want %v", decision.Permissions, tt.permissions)
			}
		})
	}
}

func TestStaticEngine_UnknownProfile(t *testing.T) {
	engine, err := NewStaticEngine(nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	_, err = engine.EvaluatePolicy(context.Background(), "superuser")
	if !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("EvaluatePolicy() error = %v, want ErrUnknownProfile", err)
	}
}

func TestStaticEngine_ReturnsCopies(t *testing.T) {
	config := DefaultStaticConfig()
	engine, err := NewStaticEngine(config)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	// mutating the input config must not leak into the engine
	config.Profiles["user"].Roles[0] = "ADMIN"

	first, _ := engine.EvaluatePolicy(context.Background(), "user")
	if first.Roles[0] != "USER" {
		t.Errorf("engine shares config slices: %v", first.Roles)
	}

	first.Permissions[0] = "CACHE_ADMIN"
	second, _ := engine.EvaluatePolicy(context.Background(), "user")
	if second.Permissions[0] != "CACHE_READ" {
		t.Errorf("engine shares decision slices: %v", second.Permissions)
	}
}

func TestStaticEngine_GetNameAndVersion(t *testing.T) {
	engine, err := NewStaticEngine(nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if engine.GetName() != "static-policy-engine" {
		t.Errorf("GetName() = %v", engine.GetName())
	}
	if engine.GetVersion() != "1.0.0" {
		t.Errorf("GetVersion() = %v", engine.GetVersion())
	}
}
