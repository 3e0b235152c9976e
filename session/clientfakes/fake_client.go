package clientfakes

import (
	"context"
	"sync"

	"github.com/donmezahmet/ring-unlock/ring"
	"github.com/donmezahmet/ring-unlock/session"
)

var _ session.VendorClient = (*FakeVendorClient)(nil)

// FakeVendorClient is a scriptable vendor client for tests. Each operation
// returns the configured result and counts its calls.
type FakeVendorClient struct {
	lock sync.Mutex

	StartLoginAttempt *ring.PendingLoginAttempt
	StartLoginSession *ring.Session
	StartLoginErr     error
	StartLoginCalls   int

	SubmitSession *ring.Session
	SubmitErr     error
	SubmitCalls   int
	LastAttempt   *ring.PendingLoginAttempt
	LastCode      string

	RefreshSession *ring.Session
	RefreshErr     error
	RefreshCalls   int
}

func NewFakeVendorClient() *FakeVendorClient {
	return &FakeVendorClient{}
}

func (fc *FakeVendorClient) StartLogin(_ context.Context, email, password string) (*ring.PendingLoginAttempt, *ring.Session, error) {
	fc.lock.Lock()
	defer fc.lock.Unlock()

	fc.StartLoginCalls++
	if fc.StartLoginErr != nil {
		return nil, nil, fc.StartLoginErr
	}
	if fc.StartLoginSession != nil {
		return nil, fc.StartLoginSession, nil
	}
	if fc.StartLoginAttempt != nil {
		return fc.StartLoginAttempt, nil, nil
	}
	return &ring.PendingLoginAttempt{Email: email, Password: password, PromptID: "prompt-1"}, nil, nil
}

func (fc *FakeVendorClient) SubmitTwoFactorCode(_ context.Context, attempt *ring.PendingLoginAttempt, code string) (*ring.Session, error) {
	fc.lock.Lock()
	defer fc.lock.Unlock()

	fc.SubmitCalls++
	fc.LastAttempt = attempt
	fc.LastCode = code
	if fc.SubmitErr != nil {
		return nil, fc.SubmitErr
	}
	return fc.SubmitSession, nil
}

func (fc *FakeVendorClient) Refresh(_ context.Context, _ *ring.Session) (*ring.Session, error) {
	fc.lock.Lock()
	defer fc.lock.Unlock()

	fc.RefreshCalls++
	if fc.RefreshErr != nil {
		return nil, fc.RefreshErr
	}
	return fc.RefreshSession, nil
}

// Calls returns the per-operation call counts under the lock.
func (fc *FakeVendorClient) Calls() (start, submit, refresh int) {
	fc.lock.Lock()
	defer fc.lock.Unlock()

	return fc.StartLoginCalls, fc.SubmitCalls, fc.RefreshCalls
}
