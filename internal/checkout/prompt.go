package checkout

import (
	"leadwallet/internal/apperror"
	"sync"
)

type PromptState struct {
	Open      bool   `json:"open"`
	Message   string `json:"message,omitempty"`
	AutoStart bool   `json:"autoStart"`
}

// Prompt is the recharge prompt opened when a purchase elsewhere in the
// dashboard ran out of coins. It arms a one-shot auto-start of the recharge
// for insufficient-balance errors only.
type Prompt struct {
	mu    sync.Mutex
	state PromptState
}

func NewPrompt() *Prompt {
	return &Prompt{}
}

// Show opens the prompt with the upstream error message and reports whether
// auto-start was armed. Reopening without a fresh insufficient-balance
// message leaves auto-start disarmed.
func (p *Prompt) Show(message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Open = true
	p.state.Message = message
	p.state.AutoStart = apperror.IsInsufficientBalanceMessage(message)
	return p.state.AutoStart
}

// TakeAutoStart consumes the armed auto-start.
func (p *Prompt) TakeAutoStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Open || !p.state.AutoStart {
		return false
	}
	p.state.AutoStart = false
	return true
}

func (p *Prompt) Clear() {
	p.mu.Lock()
	p.state.AutoStart = false
	p.mu.Unlock()
}

func (p *Prompt) Hide() {
	p.mu.Lock()
	p.state = PromptState{}
	p.mu.Unlock()
}

func (p *Prompt) State() PromptState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
