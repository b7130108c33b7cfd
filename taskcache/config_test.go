package taskcache

import (
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Name: "arp", Expiry: time.Minute, OperationTimeout: time.Second}, false},
		{"never expires", Config{Name: "arp", OperationTimeout: time.Second}, false},
		{"missing name", Config{OperationTimeout: time.Second}, true},
		{"negative expiry", Config{Name: "arp", Expiry: -time.Second, OperationTimeout: time.Second}, true},
		{"zero timeout", Config{Name: "arp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_MergeDefaults(t *testing.T) {
	cfg := &Config{Name: "mdns"}
	cfg.MergeDefaults()
	if cfg.OperationTimeout != 30*time.Second {
		t.Errorf("expected default operation timeout, got %v", cfg.OperationTimeout)
	}
	if _, ok := cfg.ExpiryPolicy().Duration(); ok {
		t.Error("expected zero expiry to never expire")
	}
}

func TestNew_RejectsNilConfig(t *testing.T) {
	if _, err := New[string, int](nil, nil); err == nil {
		t.Fatal("expected error for nil config without a name")
	}
}

func TestExpiryPolicy(t *testing.T) {
	t0 := time.Unix(1000, 0)
	p := ExpireAfter(time.Second)
	if p.Expired(t0, t0.Add(time.Second)) {
		t.Error("exactly d must not be expired")
	}
	if !p.Expired(t0, t0.Add(time.Second+time.Nanosecond)) {
		t.Error("d+1ns must be expired")
	}
	if NeverExpire().Expired(t0, t0.Add(1000*time.Hour)) {
		t.Error("never policy must not expire")
	}
	if ExpireAfter(-time.Second).String() != "never" {
		t.Error("negative duration must normalize to never")
	}
}

func TestStateFlag_String(t *testing.T) {
	for flag, want := range map[StateFlag]string{
		NotInitialized: "not_initialized",
		Refreshing:     "refreshing",
		Current:        "current",
		Expired:        "expired",
		StateFlag(42):  "unknown",
	} {
		if got := flag.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", flag, got, want)
		}
	}
}
