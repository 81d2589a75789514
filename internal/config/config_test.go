package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("API_TOKEN", "secret")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"tick", cfg.Scheduler.Tick, time.Second},
		{"optimistic", cfg.Scheduler.OptimisticCancel, false},
		{"spacing", cfg.Exchange.MinSpacing, 50 * time.Millisecond},
		{"timeout", cfg.Exchange.RequestTimeout, 15 * time.Second},
		{"attempts", cfg.Exchange.RetryAttempts, 3},
		{"retry delay", cfg.Exchange.RetryDelay, 500 * time.Millisecond},
		{"base url", cfg.Exchange.MEXCBaseURL, "https://api.mexc.com"},
		{"api port", cfg.API.Port, 8080},
		{"telegram", cfg.Telegram.Enabled(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad tick", map[string]string{"SCHEDULER_TICK": "soon"}},
		{"bad bool", map[string]string{"SCHEDULER_OPTIMISTIC_CANCEL": "maybe"}},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "mysql"}},
		{"postgres without password", map[string]string{"STORAGE_DRIVER": "postgres", "DB_PASSWORD": ""}},
		{"no api token", map[string]string{"API_TOKEN": ""}},
		{"zero attempts", map[string]string{"EXCHANGE_RETRY_ATTEMPTS": "0"}},
		{"token without chat", map[string]string{"TELEGRAM_BOT_TOKEN": "t", "TELEGRAM_CHAT_ID": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORAGE_DRIVER", "memory")
			t.Setenv("API_TOKEN", "secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := FromEnv(); err == nil {
				t.Errorf("FromEnv() error = nil, want error")
			}
		})
	}
}
