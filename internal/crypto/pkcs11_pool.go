//go:build cgo

// Package crypto provides HSM-backed signers for the signature core.
// This file implements PKCS#11 session pooling for efficient HSM access.
package crypto

import (
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"
)

// PKCS11SessionPool manages PKCS#11 sessions for a single module and slot.
// Sessions are reused across operations and closed on Close.
type PKCS11SessionPool struct {
	mu        sync.Mutex
	ctx       *pkcs11.Ctx
	module    string
	slotID    uint
	pin       string
	available []pkcs11.SessionHandle        // sessions available for use
	inUse     map[pkcs11.SessionHandle]bool // sessions currently in use
	loginDone bool                          // login is per-token, not per-session
	closed    bool
}

var (
	// globalPools stores singleton pools per (module, slotID) combination
	globalPools   = make(map[string]*PKCS11SessionPool)
	globalPoolsMu sync.Mutex
)

func poolKey(modulePath string, slotID uint) string {
	return fmt.Sprintf("%s:%d", modulePath, slotID)
}

// initModule loads and initializes a PKCS#11 module.
// CKR_CRYPTOKI_ALREADY_INITIALIZED is not an error.
func initModule(modulePath string) (*pkcs11.Ctx, error) {
	ctx := pkcs11.New(modulePath)
	if ctx == nil {
		return nil, fmt.Errorf("failed to load PKCS#11 module: %s", modulePath)
	}
	if err := ctx.Initialize(); err != nil {
		if p11err, ok := err.(pkcs11.Error); !ok || p11err != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			ctx.Destroy()
			return nil, fmt.Errorf("failed to initialize PKCS#11 module: %w", err)
		}
	}
	return ctx, nil
}

// GetSessionPool returns the session pool for a PKCS#11 module and slot,
// creating it on first use.
func GetSessionPool(modulePath string, slotID uint, pin string) (*PKCS11SessionPool, error) {
	globalPoolsMu.Lock()
	defer globalPoolsMu.Unlock()

	key := poolKey(modulePath, slotID)

	if pool, ok := globalPools[key]; ok {
		pool.mu.Lock()
		closed := pool.closed
		pool.mu.Unlock()
		if !closed {
			return pool, nil
		}
		delete(globalPools, key)
	}

	ctx, err := initModule(modulePath)
	if err != nil {
		return nil, err
	}

	pool := &PKCS11SessionPool{
		ctx:    ctx,
		module: modulePath,
		slotID: slotID,
		pin:    pin,
		inUse:  make(map[pkcs11.SessionHandle]bool),
	}
	globalPools[key] = pool
	return pool, nil
}

// Context returns the underlying PKCS#11 context.
func (p *PKCS11SessionPool) Context() *pkcs11.Ctx {
	return p.ctx
}

// SlotID returns the slot ID this pool is configured for.
func (p *PKCS11SessionPool) SlotID() uint {
	return p.slotID
}

// Acquire reserves a session from the pool, opening a new one when none is
// available. The returned release function MUST be called when done:
//
//	session, release, err := pool.Acquire()
//	if err != nil { return err }
//	defer release()
func (p *PKCS11SessionPool) Acquire() (pkcs11.SessionHandle, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, nil, fmt.Errorf("session pool is closed")
	}

	var session pkcs11.SessionHandle
	if n := len(p.available); n > 0 {
		session = p.available[n-1]
		p.available = p.available[:n-1]
	} else {
		var err error
		session, err = p.ctx.OpenSession(p.slotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to open session: %w", err)
		}

		if p.pin != "" && !p.loginDone {
			if err := p.ctx.Login(session, pkcs11.CKU_USER, p.pin); err != nil {
				if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_USER_ALREADY_LOGGED_IN {
					_ = p.ctx.CloseSession(session)
					return 0, nil, fmt.Errorf("failed to login: %w", err)
				}
			}
			p.loginDone = true
		}
	}

	p.inUse[session] = true

	release := func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		delete(p.inUse, session)
		if p.closed {
			_ = p.ctx.CloseSession(session)
			return
		}
		p.available = append(p.available, session)
	}

	return session, release, nil
}

// Close logs out, closes all sessions and finalizes the module.
func (p *PKCS11SessionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	err := p.closeLocked()
	p.mu.Unlock()

	// globalPoolsMu is taken after p.mu is released; GetSessionPool locks
	// them in the opposite order.
	globalPoolsMu.Lock()
	if globalPools[poolKey(p.module, p.slotID)] == p {
		delete(globalPools, poolKey(p.module, p.slotID))
	}
	globalPoolsMu.Unlock()

	return err
}

// closeLocked must be called with p.mu held.
func (p *PKCS11SessionPool) closeLocked() error {
	p.closed = true

	var errs []error

	if p.loginDone {
		var anySession pkcs11.SessionHandle
		found := false
		if len(p.available) > 0 {
			anySession, found = p.available[0], true
		} else {
			for s := range p.inUse {
				anySession, found = s, true
				break
			}
		}
		if found {
			if err := p.ctx.Logout(anySession); err != nil {
				if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_USER_NOT_LOGGED_IN {
					errs = append(errs, fmt.Errorf("logout: %w", err))
				}
			}
		}
	}

	for _, session := range p.available {
		if err := p.ctx.CloseSession(session); err != nil {
			errs = append(errs, fmt.Errorf("close available session: %w", err))
		}
	}
	p.available = nil

	if err := p.ctx.Finalize(); err != nil {
		if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED {
			errs = append(errs, fmt.Errorf("finalize: %w", err))
		}
	}
	p.ctx.Destroy()

	if len(errs) > 0 {
		return fmt.Errorf("errors closing pool: %v", errs)
	}
	return nil
}

// CloseAllPools closes all session pools. Call it at program exit.
func CloseAllPools() {
	globalPoolsMu.Lock()
	pools := make([]*PKCS11SessionPool, 0, len(globalPools))
	for _, pool := range globalPools {
		pools = append(pools, pool)
	}
	globalPoolsMu.Unlock()

	for _, pool := range pools {
		_ = pool.Close()
	}
}
