package execution

import (
	"sync"
	"time"

	"github.com/kirillm/volume-bot/pkg/utils"
)

// KillSwitch аварийная остановка торговли
type KillSwitch struct {
	mu          sync.RWMutex
	active      bool
	activatedAt time.Time
	reason      string
	logger      *utils.Logger
}

// KillSwitchStatus состояние kill switch для API
type KillSwitchStatus struct {
	Active      bool       `json:"active"`
	Reason      string     `json:"reason,omitempty"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
}

// NewKillSwitch создает новый kill switch
func NewKillSwitch(logger *utils.Logger) *KillSwitch {
	if logger == nil {
		logger = utils.Discard()
	}
	return &KillSwitch{logger: logger}
}

// Activate активирует kill switch
func (ks *KillSwitch) Activate(reason string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.active = true
	ks.activatedAt = time.Now()
	ks.reason = reason

	ks.logger.Error("KILL SWITCH ACTIVATED: %s", reason)
}

// Deactivate деактивирует kill switch (требует ручного вмешательства)
func (ks *KillSwitch) Deactivate() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.active {
		ks.logger.Warn("Kill switch deactivated")
	}
	ks.active = false
	ks.reason = ""
}

// IsActive проверяет активен ли kill switch
func (ks *KillSwitch) IsActive() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return ks.active
}

// GetStatus возвращает статус kill switch
func (ks *KillSwitch) GetStatus() KillSwitchStatus {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	st := KillSwitchStatus{Active: ks.active, Reason: ks.reason}
	if ks.active {
		at := ks.activatedAt
		st.ActivatedAt = &at
	}
	return st
}
